package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curator-backend/internal/data/repos"
	types "github.com/yungbote/curator-backend/internal/domain"
	"github.com/yungbote/curator-backend/internal/pkg/dbctx"
	"github.com/yungbote/curator-backend/internal/platform/ctxutil"
)

/*
Notifier is the side channel for job lifecycle events (the alert bus).
Implementations must not block the job on delivery failures.
*/
type Notifier interface {
	JobProgress(job *types.JobRun, stage string, pct int, msg string)
	JobFailed(job *types.JobRun, stage string, msg string)
	JobDone(job *types.JobRun)
}

/*
Context is the execution handle for a single job run.
It wraps:
	- The database handle used by the run's passes,
	- The mutable job_run row,
	- The event ledger and notifier side effects,
	- And the only sanctioned ways to report progress or terminate execution
Struct:
	- Ctx: run-scoped context.Context (timeouts, cancellation, trace data)
	- DB: DB handle
	- Job: the JobRun row in memory
	- Repo: job_run persistence, including the event ledger
	- Notify: optional notifier
	- payload: decoded job input
*Pipelines never touch job_run directly. They must go through this object.*
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Notify  Notifier
	payload map[string]any
}

/*
NewContext constructs a Context for a claimed job.
The payload is decoded eagerly; a malformed payload leaves an empty map and
handlers validate the fields they need.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify Notifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	payload := c.Payload()
	td := &ctxutil.TraceData{
		TraceID:   strings.TrimSpace(fmt.Sprint(valueOr(payload["trace_id"]))),
		RequestID: strings.TrimSpace(fmt.Sprint(valueOr(payload["request_id"]))),
	}
	if c.Job != nil {
		td.RunID = c.Job.ID.String()
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, td)
}

func valueOr(v any) any {
	if v == nil {
		return ""
	}
	return v
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) PayloadBool(key string) bool {
	switch v := c.Payload()[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// PayloadInt reads a JSON number field; ok is false when missing or not numeric.
func (c *Context) PayloadInt(key string) (int, bool) {
	switch v := c.Payload()[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// PayloadTime parses an RFC3339 payload field.
func (c *Context) PayloadTime(key string) (time.Time, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

/*
Progress publishes a non-terminal status update.
	- Persists stage/progress/message plus heartbeat into job_run, guarded so a
	  canceled run is not overwritten.
	- Appends a progress event to the ledger.
	- Notifies.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.ctx()
	now := time.Now().UTC()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{types.StatusCanceled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.appendEvent(types.JobEventProgress, stage, pct, msg, nil)

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
}

/*
Pass records one completed batch pass and its summary in the event ledger.
It does not change the run's status.
*/
func (c *Context) Pass(stage string, summary any) {
	if c == nil {
		return
	}
	pct := 0
	if c.Job != nil {
		pct = c.Job.Progress
	}
	c.appendEvent(types.JobEventPass, stage, pct, "", summary)
}

/*
Fail marks the run failed and records the error.
	- Sets status=failed, stage, error, last_error_at; clears locked_at
	- Guarded by UpdateFieldsUnlessStatus(..., [canceled]); a rejected update
	  exits without ledger or notification side effects
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.ctx()
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{types.StatusCanceled}, map[string]interface{}{
			"status":        types.StatusFailed,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.StatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.appendEvent(types.JobEventFailed, stage, c.progress(), msg, nil)

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

/*
Succeed marks the run succeeded and stores result as JSON.
	- Sets status=succeeded, stage, progress=100; clears error, message, locked_at
	- Guarded like Fail
*/
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := c.ctx()
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{types.StatusCanceled}, map[string]interface{}{
			"status":       types.StatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.appendEvent(types.JobEventSucceeded, finalStage, 100, "", nil)

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job)
	}
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) progress() int {
	if c.Job == nil {
		return 0
	}
	return c.Job.Progress
}

// Ledger writes are best effort; the job_run row is authoritative.
func (c *Context) appendEvent(kind types.JobEventKind, stage string, pct int, msg string, data any) {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	ev := &types.JobRunEvent{
		JobID:    c.Job.ID,
		Kind:     kind,
		Stage:    stage,
		Progress: pct,
		Message:  msg,
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			ev.Data = datatypes.JSON(b)
		}
	}
	_ = c.Repo.AppendEvent(dbctx.Context{Ctx: c.ctx()}, ev)
}
