package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
)

const (
	ProbeSpreadsheet   = "spreadsheet"
	ProbeDocumentStore = "document_store"
	ProbeScheduling    = "scheduling"
	ProbeMetadataStore = "metadata_store"
	ProbeLastSync      = "last_sync"
	ProbeLeadCount     = "lead_count"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckUseCase aggregates reachability, heartbeat age and lead count
// into one read-only report. Overall is the worst dependency status.
type HealthCheckUseCase struct {
	Sheet      Pinger
	Docs       LeadRepository
	Scheduling Pinger
	Metadata   entity.SyncMetadataStore
	Cache      HealthCache
	Logger     logrus.FieldLogger

	StalenessThreshold time.Duration
	SlowThreshold      time.Duration
	ProbeTimeout       time.Duration
	CacheTTL           time.Duration
	Now                func() time.Time
}

func (uc *HealthCheckUseCase) now() time.Time {
	if uc.Now == nil {
		return time.Now().UTC()
	}
	return uc.Now().UTC()
}

func (uc *HealthCheckUseCase) staleness() time.Duration {
	if uc.StalenessThreshold <= 0 {
		return 10 * time.Minute
	}
	return uc.StalenessThreshold
}

// Report serves the cached report unless fresh is set or the cache misses.
func (uc *HealthCheckUseCase) Report(ctx context.Context, fresh bool) *entity.HealthReport {
	if !fresh && uc.Cache != nil {
		if report, ok := uc.Cache.Get(ctx); ok {
			return report
		}
	}
	report := uc.Check(ctx)
	if uc.Cache != nil && uc.CacheTTL > 0 {
		uc.Cache.Set(ctx, report, uc.CacheTTL)
	}
	return report
}

// Check probes every configured dependency.
func (uc *HealthCheckUseCase) Check(ctx context.Context) *entity.HealthReport {
	report := &entity.HealthReport{Overall: entity.Healthy, CheckedAt: uc.now()}

	type probe struct {
		name   string
		target Pinger
	}
	probes := []probe{
		{ProbeSpreadsheet, uc.Sheet},
		{ProbeScheduling, uc.Scheduling},
		{ProbeMetadataStore, uc.Metadata},
	}
	if uc.Docs != nil {
		probes = append(probes, probe{ProbeDocumentStore, uc.Docs})
	}

	results := make([]entity.DependencyCheck, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		if p.target == nil {
			results[i] = entity.DependencyCheck{Name: p.name, Status: entity.Degraded, Detail: "not configured"}
			continue
		}
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			results[i] = uc.ping(ctx, p.name, p.target)
		}(i, p)
	}
	wg.Wait()

	hasRun, lastSync := uc.checkLastSync(ctx, report)
	results = append(results, lastSync, uc.checkLeadCount(ctx, report, hasRun))

	for _, r := range results {
		report.Overall = report.Overall.Worse(r.Status)
	}
	report.Dependencies = results
	return report
}

func (uc *HealthCheckUseCase) ping(ctx context.Context, name string, target Pinger) entity.DependencyCheck {
	timeout := uc.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	slow := uc.SlowThreshold
	if slow <= 0 {
		slow = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := target.Ping(ctx)
	latency := time.Since(start)

	check := entity.DependencyCheck{Name: name, Status: entity.Healthy, LatencyMS: latency.Milliseconds()}
	switch {
	case err != nil:
		check.Status = entity.Unhealthy
		check.Detail = err.Error()
	case latency > slow:
		check.Status = entity.Degraded
		check.Detail = fmt.Sprintf("slow response (%s)", latency.Round(time.Millisecond))
	}
	return check
}

func (uc *HealthCheckUseCase) checkLastSync(ctx context.Context, report *entity.HealthReport) (bool, entity.DependencyCheck) {
	check := entity.DependencyCheck{Name: ProbeLastSync}
	if uc.Metadata == nil {
		check.Status = entity.Degraded
		check.Detail = "not configured"
		return false, check
	}

	meta, err := uc.Metadata.Latest(ctx)
	if errors.Is(err, entity.ErrNotFound) {
		check.Status = entity.Unhealthy
		check.Detail = "no sync has ever completed"
		return false, check
	}
	if err != nil {
		check.Status = entity.Unhealthy
		check.Detail = err.Error()
		return false, check
	}
	if meta.LastSuccessAt == nil {
		check.Status = entity.Unhealthy
		check.Detail = fmt.Sprintf("no successful run (last run %s)", meta.LastStatus)
		return true, check
	}

	age := uc.now().Sub(*meta.LastSuccessAt)
	report.LastSyncAge = age.Round(time.Second).String()
	threshold := uc.staleness()
	switch {
	case age <= threshold:
		check.Status = entity.Healthy
	case age <= 3*threshold:
		check.Status = entity.Degraded
		check.Detail = "last successful sync " + report.LastSyncAge + " ago"
	default:
		check.Status = entity.Unhealthy
		check.Detail = "last successful sync " + report.LastSyncAge + " ago"
	}
	return true, check
}

func (uc *HealthCheckUseCase) checkLeadCount(ctx context.Context, report *entity.HealthReport, hasRun bool) entity.DependencyCheck {
	check := entity.DependencyCheck{Name: ProbeLeadCount, Status: entity.Healthy}
	if uc.Docs == nil {
		check.Status = entity.Degraded
		check.Detail = "not configured"
		return check
	}
	n, err := uc.Docs.Count(ctx)
	if err != nil {
		check.Status = entity.Unhealthy
		check.Detail = err.Error()
		return check
	}
	report.LeadCount = n
	if n == 0 {
		if hasRun {
			check.Status = entity.Unhealthy
			check.Detail = "document store is empty"
		} else {
			check.Status = entity.Degraded
			check.Detail = "document store is empty, awaiting first sync"
		}
	}
	return check
}
