package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
)

type WatchdogStatus string

const (
	WatchdogHealthy      WatchdogStatus = "healthy"
	WatchdogInitializing WatchdogStatus = "initializing"
	WatchdogDegraded     WatchdogStatus = "degraded"
	WatchdogRecovering   WatchdogStatus = "recovering"
	WatchdogCritical     WatchdogStatus = "critical"
)

var watchdogSeverity = map[WatchdogStatus]int{
	WatchdogHealthy:      0,
	WatchdogInitializing: 1,
	WatchdogDegraded:     2,
	WatchdogRecovering:   3,
	WatchdogCritical:     4,
}

// Escalate returns the more severe of s and other.
func (s WatchdogStatus) Escalate(other WatchdogStatus) WatchdogStatus {
	if watchdogSeverity[other] > watchdogSeverity[s] {
		return other
	}
	return s
}

const (
	TriggerInitial   = "initial"
	TriggerStale     = "stale"
	TriggerEmergency = "emergency"
)

type WatchdogCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// WatchdogReport is the observable output of one tick.
type WatchdogReport struct {
	Overall          WatchdogStatus   `json:"overall"`
	CheckedAt        time.Time        `json:"checked_at"`
	Checks           []WatchdogCheck  `json:"checks"`
	Actions          []string         `json:"actions"`
	LastSuccessAt    *time.Time       `json:"last_success_at,omitempty"`
	MinutesSinceSync float64          `json:"minutes_since_sync,omitempty"`
	UnresolvedErrors int              `json:"unresolved_errors"`
	LeadCount        int64            `json:"lead_count"`
	Trigger          string           `json:"trigger,omitempty"`
	SyncRunID        string           `json:"sync_run_id,omitempty"`
	SyncStatus       entity.RunStatus `json:"sync_status,omitempty"`
}

func (r *WatchdogReport) check(name string, ok bool, detail string) {
	r.Checks = append(r.Checks, WatchdogCheck{Name: name, OK: ok, Detail: detail})
}

func (r *WatchdogReport) act(format string, args ...interface{}) {
	r.Actions = append(r.Actions, fmt.Sprintf(format, args...))
}

// WatchdogUseCase evaluates the heartbeat, the error rate and the lead count,
// and runs the sync itself when the heartbeat is stale or the store is empty.
type WatchdogUseCase struct {
	Metadata entity.SyncMetadataStore
	Errors   entity.SystemErrorStore
	Docs     LeadRepository
	Sync     SyncRunner
	Alerts   Alerter
	Metrics  MetricsRecorder
	Logger   logrus.FieldLogger

	StalenessThreshold time.Duration
	ErrorWindow        time.Duration
	ErrorThreshold     int
	Now                func() time.Time
}

func (uc *WatchdogUseCase) now() time.Time {
	if uc.Now == nil {
		return time.Now().UTC()
	}
	return uc.Now().UTC()
}

func (uc *WatchdogUseCase) logger() logrus.FieldLogger {
	if uc.Logger == nil {
		return logrus.StandardLogger()
	}
	return uc.Logger
}

// Tick runs one evaluation. It never returns an error: every failure ends up
// in the report and, where relevant, in the SystemError log.
func (uc *WatchdogUseCase) Tick(ctx context.Context) (report *WatchdogReport) {
	report = &WatchdogReport{Overall: WatchdogHealthy, CheckedAt: uc.now()}
	log := uc.logger().WithField("component", "watchdog")

	defer func() {
		if r := recover(); r != nil {
			report.Overall = report.Overall.Escalate(WatchdogCritical)
			report.check("tick", false, fmt.Sprintf("panic: %v", r))
			log.Errorf("❌ watchdog tick panicked: %v", r)
		}
		if uc.Metrics != nil {
			uc.Metrics.RecordWatchdogTick(string(report.Overall))
		}
	}()

	threshold := uc.StalenessThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	trigger := ""
	fresh := uc.checkHeartbeat(ctx, report, threshold, &trigger)
	uc.checkErrorRate(ctx, report)
	nonEmpty := uc.checkLeadCount(ctx, report, &trigger)

	if trigger != "" {
		uc.runSync(ctx, log, report, trigger)
	}
	if fresh && nonEmpty {
		uc.autoResolve(ctx, log, report)
	}

	uc.raiseAlert(ctx, report)
	log.WithFields(logrus.Fields{
		"overall": report.Overall,
		"trigger": report.Trigger,
		"actions": len(report.Actions),
	}).Info("🐕 watchdog tick")
	return report
}

func (uc *WatchdogUseCase) checkHeartbeat(ctx context.Context, report *WatchdogReport, threshold time.Duration, trigger *string) bool {
	meta, err := uc.Metadata.Latest(ctx)
	if errors.Is(err, entity.ErrNotFound) {
		report.check("heartbeat", false, "no sync has ever completed")
		report.Overall = report.Overall.Escalate(WatchdogInitializing)
		*trigger = TriggerInitial
		return false
	}
	if err != nil {
		report.check("heartbeat", false, "metadata unreadable: "+err.Error())
		report.Overall = report.Overall.Escalate(WatchdogDegraded)
		return false
	}

	report.LastSuccessAt = meta.LastSuccessAt
	if meta.LastSuccessAt == nil {
		report.check("heartbeat", false, fmt.Sprintf("no successful run yet (last run %s)", meta.LastStatus))
		report.Overall = report.Overall.Escalate(WatchdogRecovering)
		*trigger = TriggerStale
		uc.recordError(ctx, entity.ErrorTypeStaleHeartbeat, "no successful sync recorded", nil)
		return false
	}

	age := report.CheckedAt.Sub(*meta.LastSuccessAt)
	report.MinutesSinceSync = age.Minutes()
	if age > threshold {
		detail := fmt.Sprintf("last success %.1f minutes ago (threshold %s)", age.Minutes(), threshold)
		report.check("heartbeat", false, detail)
		report.Overall = report.Overall.Escalate(WatchdogRecovering)
		*trigger = TriggerStale
		uc.recordError(ctx, entity.ErrorTypeStaleHeartbeat, detail, map[string]string{
			"last_success_at": meta.LastSuccessAt.Format(time.RFC3339),
		})
		return false
	}
	report.check("heartbeat", true, fmt.Sprintf("last success %.1f minutes ago", age.Minutes()))
	return true
}

func (uc *WatchdogUseCase) checkErrorRate(ctx context.Context, report *WatchdogReport) {
	window := uc.ErrorWindow
	if window <= 0 {
		window = time.Hour
	}
	limit := uc.ErrorThreshold
	if limit <= 0 {
		limit = 10
	}

	// a previous error_rate entry is superseded by this evaluation and must
	// not count toward it
	if _, err := uc.Errors.ResolveByType(ctx, entity.ErrorTypeErrorRate); err != nil {
		uc.logger().WithError(err).Warn("could not resolve previous error_rate entries")
	}

	n, err := uc.Errors.CountUnresolvedSince(ctx, report.CheckedAt.Add(-window))
	if err != nil {
		report.check("error_rate", false, "error log unreadable: "+err.Error())
		report.Overall = report.Overall.Escalate(WatchdogDegraded)
		return
	}
	report.UnresolvedErrors = n
	if n > limit {
		detail := fmt.Sprintf("%d unresolved errors in the last %s (threshold %d)", n, window, limit)
		report.check("error_rate", false, detail)
		report.Overall = report.Overall.Escalate(WatchdogDegraded)
		uc.recordError(ctx, entity.ErrorTypeErrorRate, detail, map[string]string{
			"count":     fmt.Sprint(n),
			"window":    window.String(),
			"threshold": fmt.Sprint(limit),
		})
		return
	}
	report.check("error_rate", true, fmt.Sprintf("%d unresolved errors in the last %s", n, window))
}

func (uc *WatchdogUseCase) checkLeadCount(ctx context.Context, report *WatchdogReport, trigger *string) bool {
	n, err := uc.Docs.Count(ctx)
	if err != nil {
		report.check("lead_count", false, "document store unreadable: "+err.Error())
		report.Overall = report.Overall.Escalate(WatchdogDegraded)
		return false
	}
	report.LeadCount = n
	if n == 0 {
		report.check("lead_count", false, "document store is empty")
		report.Overall = report.Overall.Escalate(WatchdogCritical)
		*trigger = TriggerEmergency
		uc.recordError(ctx, entity.ErrorTypeEmptyStore, "document store holds no leads", nil)
		return false
	}
	report.check("lead_count", true, fmt.Sprintf("%d leads", n))
	return true
}

// runSync invokes the orchestrator directly, at most once per tick.
func (uc *WatchdogUseCase) runSync(ctx context.Context, log logrus.FieldLogger, report *WatchdogReport, trigger string) {
	report.Trigger = trigger
	if uc.Sync == nil {
		report.act("%s sync needed but no sync runner is configured", trigger)
		return
	}

	run, err := uc.safeExecute(ctx, "watchdog:"+trigger)
	if run != nil {
		report.SyncRunID = run.ID
		report.SyncStatus = run.Status
	}

	switch {
	case err != nil:
		report.act("triggered %s sync: %v", trigger, err)
	case run.Status == entity.RunFailed:
		err = fmt.Errorf("sync run %s failed", run.ID)
		report.act("triggered %s sync %s: failed", trigger, run.ID)
	default:
		report.act("triggered %s sync %s: %s", trigger, run.ID, run.Status)
		return
	}

	log.WithError(err).WithField("trigger", trigger).Error("❌ watchdog recovery sync failed")
	sysErr := uc.recordError(ctx, entity.ErrorTypeTriggerFailed, err.Error(), map[string]string{"trigger": trigger})
	alert := Alert{
		Severity: SeverityCritical,
		Type:     entity.ErrorTypeTriggerFailed,
		Message:  fmt.Sprintf("watchdog %s sync failed: %v", trigger, err),
		RaisedAt: uc.now(),
		Overall:  report.Overall,
	}
	if sysErr != nil {
		alert.ErrorID = sysErr.ID
	}
	if uc.Alerts != nil {
		uc.Alerts.Alert(ctx, alert)
	}
}

func (uc *WatchdogUseCase) safeExecute(ctx context.Context, trigger string) (run *entity.SyncRun, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	return uc.Sync.Execute(ctx, trigger)
}

func (uc *WatchdogUseCase) autoResolve(ctx context.Context, log logrus.FieldLogger, report *WatchdogReport) {
	for _, errType := range []string{entity.ErrorTypeStaleHeartbeat, entity.ErrorTypeEmptyStore} {
		n, err := uc.Errors.ResolveByType(ctx, errType)
		if err != nil {
			log.WithError(err).WithField("type", errType).Warn("could not auto-resolve errors")
			continue
		}
		if n > 0 {
			report.act("auto-resolved %d %s errors", n, errType)
		}
	}
}

func (uc *WatchdogUseCase) raiseAlert(ctx context.Context, report *WatchdogReport) {
	if uc.Alerts == nil {
		return
	}
	var severity Severity
	switch report.Overall {
	case WatchdogCritical:
		severity = SeverityCritical
	case WatchdogRecovering, WatchdogDegraded:
		severity = SeverityWarning
	default:
		return
	}

	msg := fmt.Sprintf("watchdog status %s", report.Overall)
	for _, c := range report.Checks {
		if !c.OK {
			msg += "; " + c.Name + ": " + c.Detail
		}
	}
	uc.Alerts.Alert(ctx, Alert{
		Severity: severity,
		Type:     "watchdog_" + string(report.Overall),
		Message:  msg,
		RaisedAt: report.CheckedAt,
		Overall:  report.Overall,
	})
}

func (uc *WatchdogUseCase) recordError(ctx context.Context, errType, message string, fields map[string]string) *entity.SystemError {
	sysErr := entity.NewSystemError(errType, message, fields)
	sysErr.CreatedAt = uc.now()
	if err := uc.Errors.Record(ctx, sysErr); err != nil {
		uc.logger().WithError(err).WithField("type", errType).Warn("could not record system error")
		return nil
	}
	return sysErr
}
