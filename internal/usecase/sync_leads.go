package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
	"github.com/xavierca1/leadsync/internal/reconcile"
	"github.com/xavierca1/leadsync/internal/retry"
)

const (
	storeSpreadsheet = "spreadsheet"
	storeDocuments   = "document_store"

	persistTimeout = 10 * time.Second
)

// SyncLeadsUseCase runs the three sync stages in fixed order: bookings into
// the sheet, sheet into the document store, then verification. A failed stage
// never aborts the run and the report is always persisted.
type SyncLeadsUseCase struct {
	Sheet    LedgerStore
	Docs     LeadRepository
	Bookings entity.BookingSource
	Metadata entity.SyncMetadataStore
	Errors   entity.SystemErrorStore
	Health   HealthChecker
	Retry    *retry.Engine
	Metrics  MetricsRecorder
	Alerts   Alerter
	Logger   logrus.FieldLogger

	EventTypeID string
	RunTimeout  time.Duration
	Now         func() time.Time
}

// BookingResult reports what one booking did to each store.
type BookingResult struct {
	Spreadsheet string `json:"spreadsheet"`
	Document    string `json:"document_store"`
	Reason      string `json:"reason,omitempty"`
}

func (uc *SyncLeadsUseCase) logger() logrus.FieldLogger {
	if uc.Logger == nil {
		return logrus.StandardLogger()
	}
	return uc.Logger
}

func (uc *SyncLeadsUseCase) now() time.Time {
	if uc.Now == nil {
		return time.Now().UTC()
	}
	return uc.Now().UTC()
}

func (uc *SyncLeadsUseCase) metrics() MetricsRecorder {
	if uc.Metrics == nil {
		return noopMetrics{}
	}
	return uc.Metrics
}

func (uc *SyncLeadsUseCase) alerts() Alerter {
	if uc.Alerts == nil {
		return noopAlerter{}
	}
	return uc.Alerts
}

// Execute runs one sync. The returned error only reports a failure to
// persist the run report; stage failures live in the report itself.
func (uc *SyncLeadsUseCase) Execute(ctx context.Context, trigger string) (*entity.SyncRun, error) {
	run := &entity.SyncRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: uc.now(),
	}
	log := uc.logger().WithFields(logrus.Fields{"run_id": run.ID, "trigger": trigger})
	log.Info("🔄 sync run started")

	runCtx := ctx
	if uc.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, uc.RunTimeout)
		defer cancel()
	}

	bookings := uc.reconcileBookings(runCtx, log)
	ingestion := uc.ingestSpreadsheet(runCtx, log, run.ID)
	verification := uc.verify(runCtx, log, run)
	run.Stages = []entity.StageOutcome{bookings, ingestion, verification}

	switch {
	case !ingestion.OK:
		run.Status = entity.RunFailed
	case !bookings.OK || !verification.OK:
		run.Status = entity.RunPartial
	default:
		run.Status = entity.RunSuccess
	}
	run.FinishedAt = uc.now()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)

	// the run deadline may have expired; the report must still land
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	uc.recordOutcome(persistCtx, log, run)

	var persistErr error
	if uc.Metadata != nil {
		out := uc.Retry.Do(persistCtx, "metadata.save_run", func(ctx context.Context) error {
			return uc.Metadata.SaveRun(ctx, run)
		})
		if out.Err != nil {
			persistErr = fmt.Errorf("persist run %s: %w", run.ID, out.Err)
			log.WithError(out.Err).Error("❌ could not persist sync report")
		}
	}

	fields := logrus.Fields{"status": run.Status, "duration": run.Duration.String()}
	switch run.Status {
	case entity.RunSuccess:
		log.WithFields(fields).Info("✅ sync run finished")
	case entity.RunPartial:
		log.WithFields(fields).Warn("⚠️ sync run finished with failed stages")
	default:
		log.WithFields(fields).Error("❌ sync run failed")
	}
	return run, persistErr
}

func (uc *SyncLeadsUseCase) recordOutcome(ctx context.Context, log logrus.FieldLogger, run *entity.SyncRun) {
	m := uc.metrics()
	m.RecordSyncRun(string(run.Status), run.Duration.Seconds())

	var failed []string
	for _, stage := range run.Stages {
		for store, c := range stage.Counts {
			m.RecordRecords(store, "created", c.Created)
			m.RecordRecords(store, "updated", c.Updated)
			m.RecordRecords(store, "skipped", c.Skipped)
			m.RecordRecords(store, "errored", c.Errored)
		}
		if stage.OK {
			continue
		}
		failed = append(failed, string(stage.Name))
		m.RecordStageFailure(string(stage.Name))

		if uc.Errors != nil {
			sysErr := entity.NewSystemError(entity.ErrorTypeStageFailed,
				fmt.Sprintf("sync stage %s failed: %s", stage.Name, stage.Error),
				map[string]string{"run_id": run.ID, "stage": string(stage.Name), "attempts": fmt.Sprint(stage.Attempts)})
			if err := uc.Errors.Record(ctx, sysErr); err != nil {
				log.WithError(err).Warn("could not record system error")
			}
		}
	}

	if len(failed) == 0 {
		return
	}
	severity := SeverityWarning
	if run.Status == entity.RunFailed {
		severity = SeverityCritical
	}
	uc.alerts().Alert(ctx, Alert{
		Severity: severity,
		Type:     entity.ErrorTypeStageFailed,
		Message:  fmt.Sprintf("sync run %s finished %s; failed stages: %s", run.ID, run.Status, strings.Join(failed, ", ")),
		Context:  map[string]string{"run_id": run.ID, "trigger": run.Trigger},
		RaisedAt: uc.now(),
	})
}

// reconcileBookings is stage 1: scheduling service -> spreadsheet.
func (uc *SyncLeadsUseCase) reconcileBookings(ctx context.Context, log logrus.FieldLogger) (stage entity.StageOutcome) {
	started := time.Now()
	stage = entity.StageOutcome{Name: entity.StageBookings, Counts: map[string]entity.StoreCounts{}}
	log = log.WithField("stage", stage.Name)
	defer func() { stage.Duration = time.Since(started) }()

	if uc.Bookings == nil {
		stage.OK = true
		stage.Warnings = append(stage.Warnings, "no scheduling service configured")
		return stage
	}

	bookings, out := retry.Run(ctx, uc.Retry, "calcom.fetch_upcoming", func(ctx context.Context) ([]*entity.Booking, error) {
		return uc.Bookings.FetchUpcoming(ctx, uc.EventTypeID)
	})
	stage.Attempts = out.Attempts
	if !out.OK() {
		return failStage(stage, out.Err)
	}

	type rowsResult struct {
		leads []*entity.Lead
	}
	rows, out := retry.Run(ctx, uc.Retry, "sheet.fetch_rows", func(ctx context.Context) (rowsResult, error) {
		leads, _, err := uc.Sheet.FetchRows(ctx)
		return rowsResult{leads: leads}, err
	})
	stage.Attempts += out.Attempts
	if !out.OK() {
		return failStage(stage, out.Err)
	}
	leads := rows.leads

	writes, writeFailures := 0, 0
	for _, b := range bookings {
		if b.StartTime.IsZero() {
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Errored++ })
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("booking %s has no start time", b.ExternalRef))
			continue
		}
		id := b.Identity()
		target, _, _ := identity.Best(id, leads, (*entity.Lead).Identity)
		decision := reconcile.ApplyBooking(target, b, uc.now())

		if decision.Action == reconcile.ActionNoop {
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Skipped++ })
			log.WithFields(logrus.Fields{"booking": b.ExternalRef, "reason": decision.Reason}).Debug("booking skipped")
			continue
		}
		if decision.Action == reconcile.ActionCreate && id.Phone == "" {
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Skipped++ })
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("booking %s has no phone and matches no row", b.ExternalRef))
			continue
		}

		writes++
		res, out := retry.Run(ctx, uc.Retry, "sheet.upsert", func(ctx context.Context) (entity.UpsertResult, error) {
			return uc.Sheet.Upsert(ctx, id, decision.Patch)
		})
		if !out.OK() {
			writeFailures++
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Errored++ })
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("booking %s: %v", b.ExternalRef, out.Err))
			log.WithField("booking", b.ExternalRef).WithError(out.Err).Warn("booking not applied")
			continue
		}

		if res.Created {
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Created++ })
			created := &entity.Lead{Phone: id.Phone, Email: id.Email}
			decision.Patch.Apply(created)
			leads = append(leads, created)
		} else {
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Updated++ })
			// keep the snapshot current so a second booking for the same lead appends to fresh notes
			if target != nil {
				decision.Patch.Apply(target)
			}
		}
		log.WithFields(logrus.Fields{"booking": b.ExternalRef, "phone": id.Phone, "action": decision.Action}).Info("📅 booking applied")
	}

	if writes > 0 && writeFailures == writes {
		stage.Error = "every booking write failed"
		return stage
	}
	stage.OK = ctx.Err() == nil
	if !stage.OK {
		stage.Error = ctx.Err().Error()
	}
	return stage
}

// ingestSpreadsheet is stage 2: spreadsheet -> document store.
func (uc *SyncLeadsUseCase) ingestSpreadsheet(ctx context.Context, log logrus.FieldLogger, runID string) (stage entity.StageOutcome) {
	started := time.Now()
	stage = entity.StageOutcome{Name: entity.StageIngestion, Counts: map[string]entity.StoreCounts{}}
	log = log.WithField("stage", stage.Name)
	defer func() { stage.Duration = time.Since(started) }()

	type rowsResult struct {
		leads    []*entity.Lead
		rejected []*entity.RecordError
	}
	rows, out := retry.Run(ctx, uc.Retry, "sheet.fetch_rows", func(ctx context.Context) (rowsResult, error) {
		leads, rejected, err := uc.Sheet.FetchRows(ctx)
		return rowsResult{leads: leads, rejected: rejected}, err
	})
	stage.Attempts = out.Attempts
	if !out.OK() {
		return failStage(stage, out.Err)
	}

	for _, rec := range rows.rejected {
		bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Errored++ })
		stage.Warnings = append(stage.Warnings, rec.Error())
		log.WithField("row", rec.Row).Warn("row rejected: " + rec.Error())
		uc.recordRejected(ctx, log, runID, rec)
	}

	docs, out := retry.Run(ctx, uc.Retry, "mongo.fetch_all", func(ctx context.Context) ([]*entity.Lead, error) {
		return uc.Docs.FetchAll(ctx, entity.LeadFilter{IncludeArchived: true})
	})
	stage.Attempts += out.Attempts
	if !out.OK() {
		return failStage(stage, out.Err)
	}

	// rows normalizing to one phone are one lead; the first row wins
	firstRow := map[string]int{}

	writes, writeFailures := 0, 0
	for _, row := range rows.leads {
		id := row.Identity()
		if id.Phone == "" {
			bump(stage.Counts, storeDocuments, func(c *entity.StoreCounts) { c.Skipped++ })
			continue
		}
		if first, dup := firstRow[id.DocumentID()]; dup {
			bump(stage.Counts, storeSpreadsheet, func(c *entity.StoreCounts) { c.Errored++ })
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("row %d: duplicate of row %d (%s), ignored", row.SheetRow, first, id.Phone))
			log.WithFields(logrus.Fields{"row": row.SheetRow, "first_row": first, "phone": id.Phone}).Warn("duplicate row ignored")
			continue
		}
		firstRow[id.DocumentID()] = row.SheetRow
		if err := row.Validate(); err != nil {
			bump(stage.Counts, storeDocuments, func(c *entity.StoreCounts) { c.Errored++ })
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("row %d: %v", row.SheetRow, err))
			continue
		}

		target, _, _ := identity.Best(id, docs, (*entity.Lead).Identity)
		decision := reconcile.Diff(target, row, uc.now())
		if decision.Action == reconcile.ActionNoop {
			bump(stage.Counts, storeDocuments, func(c *entity.StoreCounts) { c.Skipped++ })
			continue
		}

		writes++
		res, out := retry.Run(ctx, uc.Retry, "mongo.upsert", func(ctx context.Context) (entity.UpsertResult, error) {
			return uc.Docs.Upsert(ctx, id, decision.Patch)
		})
		if !out.OK() {
			writeFailures++
			bump(stage.Counts, storeDocuments, func(c *entity.StoreCounts) { c.Errored++ })
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("row %d: %v", row.SheetRow, out.Err))
			log.WithFields(logrus.Fields{"row": row.SheetRow, "phone": id.Phone}).WithError(out.Err).Warn("lead not ingested")
			continue
		}

		if res.Created {
			bump(stage.Counts, storeDocuments, func(c *entity.StoreCounts) { c.Created++ })
			created := &entity.Lead{ID: res.ID, Phone: id.Phone, Email: id.Email}
			decision.Patch.Apply(created)
			docs = append(docs, created)
		} else {
			bump(stage.Counts, storeDocuments, func(c *entity.StoreCounts) { c.Updated++ })
			if target != nil {
				decision.Patch.Apply(target)
			}
		}
	}

	if writes > 0 && writeFailures == writes {
		stage.Error = "every document write failed"
		return stage
	}
	stage.OK = ctx.Err() == nil
	if !stage.OK {
		stage.Error = ctx.Err().Error()
	}
	c := stage.Counts[storeDocuments]
	log.WithFields(logrus.Fields{"created": c.Created, "updated": c.Updated, "errored": c.Errored}).Info("📥 spreadsheet ingested")
	return stage
}

// verify is stage 3. The last_sync probe is reported but not judged: the run
// in progress is about to refresh it.
func (uc *SyncLeadsUseCase) verify(ctx context.Context, log logrus.FieldLogger, run *entity.SyncRun) (stage entity.StageOutcome) {
	started := time.Now()
	stage = entity.StageOutcome{Name: entity.StageVerification, Attempts: 1}
	defer func() { stage.Duration = time.Since(started) }()

	if uc.Health == nil {
		stage.OK = true
		stage.Warnings = append(stage.Warnings, "no health checker configured")
		return stage
	}

	report := uc.Health.Check(ctx)
	run.Health = report

	var unhealthy []string
	for _, dep := range report.Dependencies {
		if dep.Name == ProbeLastSync {
			continue
		}
		switch dep.Status {
		case entity.Unhealthy:
			unhealthy = append(unhealthy, dep.Name)
		case entity.Degraded:
			stage.Warnings = append(stage.Warnings, fmt.Sprintf("%s degraded: %s", dep.Name, dep.Detail))
		}
	}
	if len(unhealthy) > 0 {
		stage.Error = "unhealthy: " + strings.Join(unhealthy, ", ")
		log.WithField("stage", stage.Name).Warn("⚠️ verification found unhealthy dependencies: " + strings.Join(unhealthy, ", "))
		return stage
	}
	stage.OK = true
	return stage
}

// ReconcileBooking applies a single booking to both stores. It is the
// webhook path and does not write a run report.
func (uc *SyncLeadsUseCase) ReconcileBooking(ctx context.Context, b *entity.Booking) (*BookingResult, error) {
	id := b.Identity()
	if id.IsZero() {
		return nil, &DomainError{Code: CodeInvalidInput, Message: "booking carries no usable phone or email"}
	}
	if b.StartTime.IsZero() {
		return nil, &DomainError{Code: CodeInvalidInput, Message: "booking carries no start time"}
	}
	log := uc.logger().WithFields(logrus.Fields{"booking": b.ExternalRef, "phone": id.Phone})
	result := &BookingResult{}

	// both stores get the same note delimiter so ingestion sees equal notes
	at := uc.now()

	sheetAction, reason, err := uc.applyBookingTo(ctx, uc.Sheet, "sheet", id, b, at)
	if err != nil {
		return nil, &TechnicalError{Code: CodeStoreFailure, Message: "spreadsheet update failed", Err: err}
	}
	result.Spreadsheet = sheetAction.String()
	result.Reason = reason

	docAction, _, err := uc.applyBookingTo(ctx, uc.Docs, "mongo", id, b, at)
	if err != nil {
		// the sheet is durable; the next scheduled run carries it over
		log.WithError(err).Warn("⚠️ booking applied to sheet only")
		result.Document = "deferred"
		return result, nil
	}
	result.Document = docAction.String()
	log.WithFields(logrus.Fields{"spreadsheet": result.Spreadsheet, "document_store": result.Document}).Info("📅 booking reconciled")
	return result, nil
}

func (uc *SyncLeadsUseCase) applyBookingTo(ctx context.Context, store entity.LeadStore, prefix string, id identity.Identity, b *entity.Booking, at time.Time) (reconcile.Action, string, error) {
	target, out := retry.Run(ctx, uc.Retry, prefix+".fetch_by_identity", func(ctx context.Context) (*entity.Lead, error) {
		return store.FetchByIdentity(ctx, id)
	})
	if out.Err != nil && !errors.Is(out.Err, entity.ErrNotFound) {
		return reconcile.ActionNoop, "", out.Err
	}

	decision := reconcile.ApplyBooking(target, b, at)
	if decision.Action == reconcile.ActionNoop {
		return decision.Action, decision.Reason, nil
	}
	if decision.Action == reconcile.ActionCreate && id.Phone == "" {
		return reconcile.ActionNoop, "no phone to create a lead from", nil
	}
	out = uc.Retry.Do(ctx, prefix+".upsert", func(ctx context.Context) error {
		_, err := store.Upsert(ctx, id, decision.Patch)
		return err
	})
	return decision.Action, decision.Reason, out.Err
}

func (uc *SyncLeadsUseCase) recordRejected(ctx context.Context, log logrus.FieldLogger, runID string, rec *entity.RecordError) {
	if uc.Errors == nil {
		return
	}
	sysErr := entity.NewSystemError(entity.ErrorTypeRecordRejected, rec.Error(), map[string]string{
		"run_id": runID,
		"row":    fmt.Sprint(rec.Row),
		"field":  rec.Field,
	})
	sysErr.CreatedAt = uc.now()
	if err := uc.Errors.Record(ctx, sysErr); err != nil {
		log.WithError(err).Warn("could not record rejected row")
	}
}

func failStage(stage entity.StageOutcome, err error) entity.StageOutcome {
	stage.OK = false
	stage.Error = err.Error()
	return stage
}

func bump(counts map[string]entity.StoreCounts, store string, fn func(*entity.StoreCounts)) {
	c := counts[store]
	fn(&c)
	counts[store] = c
}
