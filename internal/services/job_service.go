package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/jobs/pipeline/curation_cycle"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/curator-backend/internal/pkg/errors"
	"github.com/yungbote/curator-backend/internal/platform/ctxutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/temporalx/jobrun"
)

// ErrCycleRunning means a curation cycle is already queued or running.
var ErrCycleRunning = errors.New("curation cycle already queued or running")

type JobService interface {
	Enqueue(dbc dbctx.Context, jobType string, triggeredBy string, dedupeKey string, payload map[string]any) (*types.JobRun, bool, error)
	EnqueueCycleIfNeeded(dbc dbctx.Context, triggeredBy string, dedupeKey string, payload map[string]any) (*types.JobRun, bool, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	ListRecent(dbc dbctx.Context, jobType string, limit int) ([]*types.JobRun, error)
	Events(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobRunEvent, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

// NewJobService builds the job queue front door. With a nil Temporal client
// jobs stay queued for the database worker.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

// Enqueue creates a queued job run. A non-empty dedupeKey makes the insert
// idempotent: a second enqueue with the same key returns the existing run
// and created=false.
func (s *jobService) Enqueue(dbc dbctx.Context, jobType string, triggeredBy string, dedupeKey string, payload map[string]any) (*types.JobRun, bool, error) {
	if strings.TrimSpace(jobType) == "" {
		return nil, false, fmt.Errorf("missing job_type: %w", pkgerrors.ErrInvalidArgument)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}
	if strings.TrimSpace(triggeredBy) == "" {
		triggeredBy = "api"
	}

	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		JobType:     jobType,
		TriggeredBy: triggeredBy,
		Status:      types.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(raw),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
	if key := strings.TrimSpace(dedupeKey); key != "" {
		job.DedupeKey = &key
		created, err := s.repo.CreateDeduped(repoCtx, job)
		if err != nil {
			return nil, false, fmt.Errorf("create job: %w", err)
		}
		if !created {
			existing, err := s.repo.GetByDedupeKey(repoCtx, key)
			if err != nil {
				return nil, false, fmt.Errorf("load deduped job: %w", err)
			}
			s.log.Debug("Job deduplicated", "job_type", jobType, "dedupe_key", key)
			return existing, false, nil
		}
	} else if _, err := s.repo.Create(repoCtx, []*types.JobRun{job}); err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobCreated(job)
	}

	// Inside a real transaction the run is not visible yet; callers dispatch
	// after commit.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, true, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, true, err
	}
	return job, true, nil
}

// EnqueueCycleIfNeeded enqueues a curation cycle unless one is already
// queued or running, in which case it returns ErrCycleRunning.
func (s *jobService) EnqueueCycleIfNeeded(dbc dbctx.Context, triggeredBy string, dedupeKey string, payload map[string]any) (*types.JobRun, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
	if dedupeKey != "" {
		if existing, err := s.repo.GetByDedupeKey(repoCtx, dedupeKey); err != nil {
			return nil, false, err
		} else if existing != nil {
			return existing, false, nil
		}
	}
	exists, err := s.repo.ExistsRunnable(repoCtx, curation_cycle.JobType)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, ErrCycleRunning
	}
	return s.Enqueue(dbc, curation_cycle.JobType, triggeredBy, dedupeKey, payload)
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

// Dispatch hands a queued run to Temporal. Without a client it is a no-op
// and the database worker claims the run.
func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if s == nil || s.temporal == nil {
		return nil
	}
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	ctx := ctxutil.Default(dbc.Ctx)

	_, err := s.temporal.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             s.temporalTaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, jobrun.WorkflowName)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID, map[string]interface{}{
		"status":        types.StatusFailed,
		"stage":         "dispatch",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if s.notify != nil {
		if j, rerr := s.repo.GetByID(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID); rerr == nil && j != nil {
			s.notify.JobFailed(j, "dispatch", err.Error())
		}
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id: %w", pkgerrors.ErrInvalidArgument)
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, pkgerrors.ErrNotFound
	}
	return job, nil
}

func (s *jobService) ListRecent(dbc dbctx.Context, jobType string, limit int) ([]*types.JobRun, error) {
	if limit > 200 {
		limit = 200
	}
	return s.repo.ListRecent(dbc, jobType, limit)
}

func (s *jobService) Events(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobRunEvent, error) {
	if _, err := s.GetByID(dbc, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(dbc, jobID)
}

// Cancel marks a non-terminal run canceled. Running passes notice at their
// next guarded job update; Temporal runs are also asked to cancel.
func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID,
		[]string{types.StatusSucceeded, types.StatusFailed, types.StatusCanceled},
		map[string]interface{}{
			"status":     types.StatusCanceled,
			"stage":      "canceled",
			"message":    "Canceled",
			"locked_at":  nil,
			"updated_at": now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return job, fmt.Errorf("job %s is %s: %w", jobID, job.Status, pkgerrors.ErrStateConflict)
	}
	if s.temporal != nil {
		ctx := ctxutil.Default(dbc.Ctx)
		if cerr := s.temporal.CancelWorkflow(ctx, jobID.String(), ""); cerr != nil {
			var nf *serviceerror.NotFound
			if !errors.As(cerr, &nf) {
				s.log.Warn("Temporal cancel failed", "job_id", jobID, "error", cerr)
			}
		}
	}
	return s.repo.GetByID(dbc, jobID)
}
