package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	"github.com/yungbote/curator-backend/internal/jobs/pipeline/curation_cycle"
	jobrt "github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/modules/curation/cycle"
	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/temporalx"
	"github.com/yungbote/curator-backend/internal/temporalx/jobrun"
)

// Runner hosts the curation cycle workflow and its pass activities.
type Runner struct {
	log *logger.Logger

	tc      temporalsdkclient.Client
	cfg     temporalx.Config
	acts    *jobrun.Activities
	started worker.Worker
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	db *gorm.DB,
	jobRepo repos.JobRunRepo,
	runner *cycle.Runner,
	notify jobrt.Notifier,
	alerts curation_cycle.AlertSink,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if db == nil || jobRepo == nil || runner == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	wlog := log.With("component", "TemporalWorker")
	return &Runner{
		log: wlog,
		tc:  tc,
		cfg: temporalx.LoadConfig(),
		acts: &jobrun.Activities{
			Log:    wlog,
			DB:     db,
			Jobs:   jobRepo,
			Runner: runner,
			Notify: notify,
			Alerts: alerts,
		},
	}, nil
}

// Start polls the task queue until ctx is done. Start failures are retried
// with backoff for up to TEMPORAL_WORKER_START_MAX_WAIT.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = envutil.Duration("TEMPORAL_WORKER_START_BACKOFF", 250*time.Millisecond)
	policy.MaxInterval = envutil.Duration("TEMPORAL_WORKER_START_BACKOFF_MAX", 5*time.Second)
	policy.MaxElapsedTime = envutil.Duration("TEMPORAL_WORKER_START_MAX_WAIT", 60*time.Second)

	attempts := 0
	start := func() error {
		attempts++
		w := r.newWorker()
		err := w.Start()
		if err == nil {
			r.started = w
			return nil
		}
		w.Stop()
		var nfe *serviceerror.NamespaceNotFound
		if errors.As(err, &nfe) {
			if !envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
				return backoff.Permanent(fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, err))
			}
			if nerr := temporalx.EnsureNamespace(ctx, r.cfg, r.log); nerr != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", nerr)
			}
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		r.log.Warn("Temporal worker failed to start; retrying", "task_queue", r.cfg.TaskQueue, "attempt", attempts, "retry_in", next, "error", err)
	}
	if err := backoff.RetryNotify(start, backoff.WithContext(policy, ctx), notify); err != nil {
		return err
	}

	w := r.started
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempts)
	return nil
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	w.RegisterActivityWithOptions(r.acts.Begin, activity.RegisterOptions{Name: jobrun.ActivityBegin})
	w.RegisterActivityWithOptions(r.acts.Pass, activity.RegisterOptions{Name: jobrun.ActivityPass})
	w.RegisterActivityWithOptions(r.acts.Finish, activity.RegisterOptions{Name: jobrun.ActivityFinish})
	return w
}
