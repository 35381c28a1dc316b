package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
	"github.com/xavierca1/leadsync/internal/infra/integration/twilio"
	"github.com/xavierca1/leadsync/internal/reconcile"
	"github.com/xavierca1/leadsync/internal/retry"
)

// SendMessageUseCase sends outreach message N to a lead and records the side
// effect in both stores: conversation log entry, message_N_sent_at and the
// forward status move.
type SendMessageUseCase struct {
	Docs   LeadRepository
	Sheet  LedgerStore
	SMS    SMSSender
	Retry  *retry.Engine
	Errors entity.SystemErrorStore
	Logger logrus.FieldLogger
	Now    func() time.Time
}

func (uc *SendMessageUseCase) now() time.Time {
	if uc.Now == nil {
		return time.Now().UTC()
	}
	return uc.Now().UTC()
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, input SendMessageInput) (*SendMessageOutput, error) {
	if errs := ValidateSendMessageInput(input); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, &DomainError{Code: CodeInvalidInput, Message: strings.Join(msgs, "; ")}
	}

	id := identity.New(input.Phone, "")
	log := uc.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"phone": id.Phone, "step": input.Step})

	docLead, err := uc.lookup(ctx, uc.Docs, "mongo", id)
	if err != nil {
		return nil, err
	}
	sheetLead, err := uc.lookup(ctx, uc.Sheet, "sheet", id)
	if err != nil {
		return nil, err
	}
	lead := docLead
	if lead == nil {
		lead = sheetLead
	}
	if lead == nil {
		return nil, &DomainError{Code: CodeLeadNotFound, Message: "no lead with phone " + id.Phone}
	}
	if lead.ManualOverride {
		return nil, &DomainError{Code: CodeManualOverride, Message: "lead is under manual handling"}
	}
	if lead.IsProtected() {
		return nil, &DomainError{Code: CodeLeadProtected, Message: fmt.Sprintf("lead is %s", lead.Status)}
	}

	// not idempotent: one attempt, bounded by the call timeout
	result, out := retry.Run(ctx, uc.Retry.WithAttempts(1), "twilio.send", func(ctx context.Context) (*twilio.SendResult, error) {
		return uc.SMS.SendSMS(ctx, twilio.SendMessageInput{To: id.Phone, Body: input.Body})
	})
	if !out.OK() {
		if uc.Errors != nil {
			uc.Errors.Record(ctx, entity.NewSystemError(entity.ErrorTypeMessageFailed, out.Err.Error(),
				map[string]string{"phone": id.Phone, "step": fmt.Sprint(input.Step)}))
		}
		log.WithError(out.Err).Error("❌ message not sent")
		return nil, &TechnicalError{Code: CodeSendFailed, Message: "sms gateway rejected the message", Err: out.Err}
	}

	at := uc.now()
	entry := fmt.Sprintf("[out] message %d (%s): %s", input.Step, result.MessageID, input.Body)
	output := &SendMessageOutput{Phone: id.Phone, Step: input.Step, MessageID: result.MessageID, Status: lead.Status}

	// each store appends to its own copy of the log
	if docLead != nil {
		patch := reconcile.MessageSent(docLead, input.Step, entry, at)
		if err := uc.write(ctx, uc.Docs, "mongo", id, patch); err != nil {
			output.Warnings = append(output.Warnings, storeDocuments+": "+err.Error())
		} else if patch.Status != nil {
			output.Status = *patch.Status
		}
	}
	if sheetLead != nil {
		patch := reconcile.MessageSent(sheetLead, input.Step, entry, at)
		if err := uc.write(ctx, uc.Sheet, "sheet", id, patch); err != nil {
			output.Warnings = append(output.Warnings, storeSpreadsheet+": "+err.Error())
		} else if patch.Status != nil && docLead == nil {
			output.Status = *patch.Status
		}
	}

	if len(output.Warnings) > 0 {
		log.WithField("warnings", output.Warnings).Warn("⚠️ message sent but record-keeping incomplete")
	} else {
		log.WithField("sid", result.MessageID).Info("✅ message sent")
	}
	return output, nil
}

func (uc *SendMessageUseCase) lookup(ctx context.Context, store entity.LeadStore, prefix string, id identity.Identity) (*entity.Lead, error) {
	if store == nil {
		return nil, nil
	}
	lead, out := retry.Run(ctx, uc.Retry, prefix+".fetch_by_identity", func(ctx context.Context) (*entity.Lead, error) {
		return store.FetchByIdentity(ctx, id)
	})
	if errors.Is(out.Err, entity.ErrNotFound) {
		return nil, nil
	}
	if out.Err != nil {
		return nil, &TechnicalError{Code: CodeStoreFailure, Message: prefix + " lookup failed", Err: out.Err}
	}
	return lead, nil
}

func (uc *SendMessageUseCase) write(ctx context.Context, store entity.LeadStore, prefix string, id identity.Identity, patch entity.LeadPatch) error {
	out := uc.Retry.Do(ctx, prefix+".upsert", func(ctx context.Context) error {
		_, err := store.Upsert(ctx, id, patch)
		return err
	})
	return out.Err
}
