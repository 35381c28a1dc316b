package usecase

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
	"github.com/xavierca1/leadsync/internal/retry"
)

// DeleteLeadUseCase is the operator-only removal of a lead from both stores.
// The document goes first and is restored if clearing the sheet row fails.
type DeleteLeadUseCase struct {
	Docs   LeadRepository
	Sheet  LedgerStore
	Retry  *retry.Engine
	Logger logrus.FieldLogger
}

func (uc *DeleteLeadUseCase) Execute(ctx context.Context, phone string) (*DeleteLeadOutput, error) {
	id := identity.New(phone, "")
	if id.Phone == "" {
		return nil, &DomainError{Code: CodeInvalidInput, Message: "phone: must be a valid phone number"}
	}
	log := uc.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("phone", id.Phone)

	doc, out := retry.Run(ctx, uc.Retry, "mongo.fetch_by_identity", func(ctx context.Context) (*entity.Lead, error) {
		return uc.Docs.FetchByIdentity(ctx, id)
	})
	if out.Err != nil && !errors.Is(out.Err, entity.ErrNotFound) {
		return nil, &TechnicalError{Code: CodeStoreFailure, Message: "document lookup failed", Err: out.Err}
	}

	output := &DeleteLeadOutput{Phone: id.Phone}
	tx := NewTransaction(log)

	if doc != nil {
		tx.AddStep("delete document",
			func(ctx context.Context) error {
				out := uc.Retry.Do(ctx, "mongo.delete", func(ctx context.Context) error {
					return uc.Docs.Delete(ctx, id)
				})
				if out.Err == nil {
					output.DeletedDocument = true
				}
				return out.Err
			},
			func(ctx context.Context) error {
				out := uc.Retry.Do(ctx, "mongo.restore", func(ctx context.Context) error {
					return uc.Docs.Restore(ctx, doc)
				})
				if out.Err == nil {
					output.DeletedDocument = false
				}
				return out.Err
			},
		)
	}

	tx.AddStep("clear sheet row",
		func(ctx context.Context) error {
			out := uc.Retry.Do(ctx, "sheet.delete", func(ctx context.Context) error {
				return uc.Sheet.Delete(ctx, id)
			})
			switch {
			case out.Err == nil:
				output.ClearedRow = true
			case errors.Is(out.Err, entity.ErrNotFound):
				return nil
			}
			return out.Err
		},
		nil,
	)

	if err := tx.Execute(ctx); err != nil {
		log.WithError(err).Error("❌ lead delete rolled back")
		return nil, &TechnicalError{Code: CodeStoreFailure, Message: "lead delete failed", Err: err}
	}
	if !output.DeletedDocument && !output.ClearedRow {
		return nil, &DomainError{Code: CodeLeadNotFound, Message: "no lead with phone " + id.Phone}
	}

	log.WithFields(logrus.Fields{"document": output.DeletedDocument, "row": output.ClearedRow}).Info("🗑️ lead deleted")
	return output, nil
}
