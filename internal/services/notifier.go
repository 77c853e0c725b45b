package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/curator-backend/internal/domain"
	jobrt "github.com/yungbote/curator-backend/internal/jobs/runtime"
	"github.com/yungbote/curator-backend/internal/modules/curation/health"
	"github.com/yungbote/curator-backend/internal/platform/logger"
	"github.com/yungbote/curator-backend/internal/realtime"
	"github.com/yungbote/curator-backend/internal/realtime/bus"
)

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	jobrt.Notifier
	JobCreated(job *types.JobRun)
}

// AlertSink receives health reports produced by a cycle.
type AlertSink interface {
	PublishAlerts(ctx context.Context, rep *health.Report) int
}

// Notifier fans job lifecycle events and health alerts out on the bus.
// Delivery failures are logged and never fail the caller.
type Notifier struct {
	log         *logger.Logger
	bus         bus.Bus
	channel     string
	minSeverity health.Severity
	timeout     time.Duration
}

func NewNotifier(baseLog *logger.Logger, b bus.Bus, channel string, minSeverity health.Severity) *Notifier {
	if channel == "" {
		channel = "curation"
	}
	if minSeverity == "" {
		minSeverity = health.SeverityWarning
	}
	return &Notifier{
		log:         baseLog.With("service", "Notifier"),
		bus:         b,
		channel:     channel,
		minSeverity: minSeverity,
		timeout:     3 * time.Second,
	}
}

func (n *Notifier) emit(kind realtime.EventKind, data map[string]any) bool {
	if n == nil || n.bus == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	err := n.bus.Publish(ctx, realtime.Event{
		Channel: n.channel,
		Kind:    kind,
		Data:    data,
		At:      time.Now().UTC(),
	})
	if err != nil {
		n.log.Warn("Event publish failed", "kind", kind, "error", err)
		return false
	}
	return true
}

func (n *Notifier) JobCreated(job *types.JobRun) {
	n.emit(realtime.EventJobCreated, map[string]any{
		"job_id":       safeJobID(job),
		"job_type":     safeJobType(job),
		"triggered_by": safeTrigger(job),
	})
}

func (n *Notifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.emit(realtime.EventJobProgress, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *Notifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.emit(realtime.EventJobFailed, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *Notifier) JobDone(job *types.JobRun) {
	n.emit(realtime.EventJobDone, map[string]any{
		"job_id":   safeJobID(job),
		"job_type": safeJobType(job),
	})
}

// PublishAlerts sends every alert at or above the configured severity and
// returns how many were delivered.
func (n *Notifier) PublishAlerts(ctx context.Context, rep *health.Report) int {
	if n == nil || rep == nil {
		return 0
	}
	sent := 0
	for _, a := range rep.Worst(n.minSeverity) {
		if ctx.Err() != nil {
			break
		}
		if n.emit(realtime.EventHealthAlert, map[string]any{
			"severity":     a.Severity,
			"code":         a.Code,
			"subject":      a.Subject,
			"message":      a.Message,
			"status":       rep.Status,
			"runway_days":  rep.RunwayDays,
			"generated_at": rep.GeneratedAt,
		}) {
			sent++
		}
	}
	return sent
}

func safeJobID(job *types.JobRun) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func safeJobType(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.JobType
}

func safeTrigger(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.TriggeredBy
}
