package cycle

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/modules/curation/approval"
	"github.com/yungbote/curator-backend/internal/modules/curation/dedup"
	"github.com/yungbote/curator-backend/internal/modules/curation/filter"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/modules/curation/policy"
	"github.com/yungbote/curator-backend/internal/modules/curation/schedule"
	"github.com/yungbote/curator-backend/internal/observability"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/ctxutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// Options tune one cycle. Zero values use configured defaults.
type Options struct {
	Now           time.Time     `json:"now,omitempty"`
	Budget        int           `json:"budget,omitempty"`
	ForceApproval bool          `json:"force_approval,omitempty"`
	BalanceBudget int           `json:"balance_budget,omitempty"`
	Day           string        `json:"day,omitempty"`
	Window        time.Duration `json:"window,omitempty"`
	SkipSchedule  bool          `json:"skip_schedule,omitempty"`
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now
}

// Observer is called after each pass completes.
type Observer func(stage string, pct int, s PassSummary)

type Runner struct {
	items     repos.ContentItemRepo
	filter    *filter.Filter
	detector  *dedup.Detector
	engine    *approval.Engine
	scheduler *schedule.Scheduler
	monitor   *health.Monitor
	cfg       policy.Config
	log       *logger.Logger
	tracer    trace.Tracer
}

func NewRunner(db *gorm.DB, items repos.ContentItemRepo, slots repos.ScheduleSlotRepo, cfg policy.Config, baseLog *logger.Logger) (*Runner, error) {
	f, err := filter.New(cfg.Filter, baseLog)
	if err != nil {
		return nil, err
	}
	return &Runner{
		items:     items,
		filter:    f,
		detector:  dedup.NewDetector(items, cfg, baseLog),
		engine:    approval.NewEngine(items, cfg, baseLog),
		scheduler: schedule.NewScheduler(db, items, slots, cfg, baseLog),
		monitor:   health.NewMonitor(items, cfg, baseLog),
		cfg:       cfg,
		log:       baseLog.With("component", "CurationCycle"),
		tracer:    observability.Tracer("curation"),
	}, nil
}

func (r *Runner) Scheduler() *schedule.Scheduler { return r.scheduler }
func (r *Runner) Monitor() *health.Monitor       { return r.monitor }

func (r *Runner) startPass(ctx context.Context, pass string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("curation.pass", pass)}
	if td := ctxutil.GetTraceData(ctx); td != nil && td.RunID != "" {
		attrs = append(attrs, attribute.String("curation.run_id", td.RunID))
	}
	return r.tracer.Start(ctx, "curation."+pass, trace.WithAttributes(attrs...))
}

func (r *Runner) endPass(span trace.Span, s *PassSummary, start time.Time, err error) {
	s.finish(start)
	span.SetAttributes(
		attribute.Int("curation.found", s.TotalFound),
		attribute.Int("curation.processed", s.Processed),
		attribute.Int("curation.approved", s.Approved),
		attribute.Int("curation.rejected", s.Rejected),
		attribute.Int("curation.duplicates", s.Duplicates),
		attribute.Int("curation.errors", s.Errors),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	observability.Current().ObservePass(s.Pass, s.counts(), time.Since(start))
}

// DetectPass moves discovered items out of discovered: filter rejections
// first, then a duplicate verdict for every survivor. Input errors leave
// the item discovered with the error recorded on the row, which keeps it
// out of later batches until it changes or Dedup.InputErrorRetry elapses.
// Store errors abort the pass.
func (r *Runner) DetectPass(ctx context.Context, opts Options) (sum PassSummary, err error) {
	sum.Pass = PassDetect
	start := time.Now()
	ctx, span := r.startPass(ctx, PassDetect)
	defer func() { r.endPass(span, &sum, start, err) }()

	now := opts.now()
	dbc := dbctx.Context{Ctx: ctx}
	batch := repos.ItemFilter{
		OrderBy:         repos.OrderCreatedAsc,
		Limit:           r.cfg.Dedup.BatchSize,
		SkipInputErrors: true,
	}
	if retry := r.cfg.Dedup.InputErrorRetry; retry > 0 {
		batch.InputErrorRetryBefore = now.Add(-retry)
	}
	found, err := r.items.QueryByState(dbc, types.StateDiscovered, batch)
	if err != nil {
		return sum, fmt.Errorf("query discovered: %w", err)
	}
	sum.TotalFound = len(found)

	survivors := make([]*types.ContentItem, 0, len(found))
	for _, it := range found {
		out, ferr := r.filter.Evaluate(it, now)
		if ferr != nil {
			if filter.IsInputError(ferr) {
				sum.inputError(ferr)
				r.log.Debug("Skipping malformed candidate", "item_id", it.ID, "error", ferr)
				msg := ferr.Error()
				at := now
				if _, uerr := r.items.ConditionalUpdateState(dbc, it.ID, types.StateDiscovered, types.StateDiscovered, types.ItemPatch{InputError: &msg, InputErrorAt: &at}); uerr != nil {
					return sum, fmt.Errorf("record input error for %s: %w", it.ID, uerr)
				}
				continue
			}
			return sum, ferr
		}
		if !out.Reject {
			survivors = append(survivors, it)
			continue
		}
		reason := out.Reason
		won, uerr := r.items.ConditionalUpdateState(dbc, it.ID, types.StateDiscovered, types.StateRejected, types.ItemPatch{RejectReason: &reason})
		if uerr != nil {
			return sum, fmt.Errorf("reject item %s: %w", it.ID, uerr)
		}
		sum.Processed++
		if won {
			sum.Rejected++
		} else {
			sum.Lost++
		}
	}

	results, err := r.detector.CheckBatch(ctx, survivors, opts.Window)
	if err != nil {
		return sum, fmt.Errorf("duplicate check: %w", err)
	}
	verdicts := map[string]int{}
	for _, res := range results {
		v := res.Verdict
		won, uerr := r.items.ConditionalUpdateState(dbc, res.Item.ID, types.StateDiscovered, v.NextState(), v.Patch())
		if uerr != nil {
			return sum, fmt.Errorf("record verdict for %s: %w", res.Item.ID, uerr)
		}
		sum.Processed++
		if !won {
			sum.Lost++
			continue
		}
		verdicts[string(v.Reason)]++
		observability.Current().IncVerdict(string(v.Reason))
		if v.Duplicate {
			sum.Duplicates++
		}
	}
	sum.Detail = verdicts
	return sum, nil
}

// ApprovalPass runs tiers A through D.
func (r *Runner) ApprovalPass(ctx context.Context, opts Options) (sum PassSummary, err error) {
	sum.Pass = PassApproval
	start := time.Now()
	ctx, span := r.startPass(ctx, PassApproval)
	defer func() { r.endPass(span, &sum, start, err) }()

	tiers, err := r.engine.RunAllTiers(ctx, approval.Options{
		Budget:        opts.Budget,
		ForceApproval: opts.ForceApproval,
		Now:           opts.now(),
	})
	for _, t := range tiers {
		sum.TotalFound += t.Considered
		sum.Processed += t.Considered
		sum.Approved += t.Approved
		sum.Lost += t.Lost
	}
	sum.Detail = tiers
	return sum, err
}

// BalancePass tops up underrepresented platforms after the tiers.
func (r *Runner) BalancePass(ctx context.Context, opts Options) (sum PassSummary, err error) {
	sum.Pass = PassBalance
	start := time.Now()
	ctx, span := r.startPass(ctx, PassBalance)
	defer func() { r.endPass(span, &sum, start, err) }()

	res, err := r.engine.Rebalance(ctx, opts.BalanceBudget, opts.now())
	sum.TotalFound = len(res.Platforms)
	sum.Processed = res.Approved + res.Lost
	sum.Approved = res.Approved
	sum.Lost = res.Lost
	sum.Detail = res
	return sum, err
}

// SchedulePass fills the open slots of opts.Day (today by default).
func (r *Runner) SchedulePass(ctx context.Context, opts Options) (sum PassSummary, fill schedule.FillResult, err error) {
	sum.Pass = PassSchedule
	start := time.Now()
	ctx, span := r.startPass(ctx, PassSchedule)
	defer func() { r.endPass(span, &sum, start, err) }()

	now := opts.now()
	day := opts.Day
	if day == "" {
		day = r.scheduler.Today(now)
	}
	span.SetAttributes(attribute.String("curation.day", day))
	fill, err = r.scheduler.FillDay(ctx, day, now)
	if err != nil {
		return sum, fill, err
	}
	sum.TotalFound = fill.PoolSize
	sum.Processed = len(fill.Slots)
	sum.Approved = fill.Filled
	for _, s := range fill.Slots {
		observability.Current().IncSlot(string(s.Status))
	}
	sum.Detail = map[string]int{
		"filled":   fill.Filled,
		"unfilled": fill.Unfilled,
		"expired":  fill.Expired,
	}
	return sum, fill, nil
}

// HealthPass collects the pool and assesses it against sched (may be nil).
func (r *Runner) HealthPass(ctx context.Context, opts Options, sched *health.ScheduleSummary) (health.Report, error) {
	ctx, span := r.startPass(ctx, PassHealth)
	defer span.End()

	snap, err := r.monitor.Collect(ctx, opts.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return health.Report{}, err
	}
	rep := r.monitor.Assess(snap, sched)
	m := observability.Current()
	m.SetRunway(rep.RunwayDays)
	for _, a := range rep.Alerts {
		m.IncHealthAlert(string(a.Severity), a.Code)
	}
	span.SetAttributes(attribute.String("curation.health", string(rep.Status)), attribute.Int("curation.alerts", len(rep.Alerts)))
	return rep, nil
}

// Run executes every pass in dependency order. The first store error
// aborts the cycle; passes already completed stay in the report.
func (r *Runner) Run(ctx context.Context, opts Options, observe Observer) (Report, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	var rep Report
	record := func(stage string, pct int, s PassSummary) {
		rep.Passes = append(rep.Passes, s)
		rep.Totals.Add(s)
		if observe != nil {
			observe(stage, pct, s)
		}
	}

	s, err := r.DetectPass(ctx, opts)
	if err != nil {
		return rep, fmt.Errorf("detect pass: %w", err)
	}
	record(PassDetect, 25, s)

	if s, err = r.ApprovalPass(ctx, opts); err != nil {
		return rep, fmt.Errorf("approval pass: %w", err)
	}
	record(PassApproval, 45, s)

	if s, err = r.BalancePass(ctx, opts); err != nil {
		return rep, fmt.Errorf("balance pass: %w", err)
	}
	record(PassBalance, 60, s)

	if !opts.SkipSchedule {
		var fill schedule.FillResult
		if s, fill, err = r.SchedulePass(ctx, opts); err != nil {
			return rep, fmt.Errorf("schedule pass: %w", err)
		}
		rep.Fill = &fill
		rep.Day = fill.Day
		record(PassSchedule, 85, s)
	}

	hr, err := r.HealthPass(ctx, opts, ScheduleSummaryOf(rep.Fill))
	if err != nil {
		return rep, fmt.Errorf("health pass: %w", err)
	}
	rep.Health = &hr
	rep.Totals.Pass = "cycle"

	r.log.Info("Curation cycle finished",
		"processed", rep.Totals.Processed,
		"approved", rep.Totals.Approved,
		"rejected", rep.Totals.Rejected,
		"duplicates", rep.Totals.Duplicates,
		"errors", rep.Totals.Errors,
		"health", hr.Status,
	)
	return rep, nil
}
