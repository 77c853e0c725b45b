package domain

import (
	"time"

	"github.com/yungbote/curator-backend/internal/domain/content"
	"github.com/yungbote/curator-backend/internal/domain/jobs"
)

type ApprovalState = content.ApprovalState

const (
	StateDiscovered      = content.StateDiscovered
	StatePendingApproval = content.StatePendingApproval
	StateApproved        = content.StateApproved
	StateRejected        = content.StateRejected
	StateDuplicate       = content.StateDuplicate
)

type ContentItem = content.ContentItem
type ItemPatch = content.ItemPatch
type ScheduleSlot = content.ScheduleSlot
type SlotStatus = content.SlotStatus

const DayLayout = content.DayLayout

var Categories = content.Categories

func DayOf(t time.Time, loc *time.Location) string { return content.DayOf(t, loc) }

const (
	SlotFilled    = content.SlotFilled
	SlotPublished = content.SlotPublished
)

type JobRun = jobs.JobRun
type JobRunEvent = jobs.JobRunEvent

type JobEventKind = jobs.JobEventKind

const (
	JobEventCreated   = jobs.JobEventCreated
	JobEventProgress  = jobs.JobEventProgress
	JobEventPass      = jobs.JobEventPass
	JobEventFailed    = jobs.JobEventFailed
	JobEventSucceeded = jobs.JobEventSucceeded
)

const (
	StatusQueued    = jobs.StatusQueued
	StatusRunning   = jobs.StatusRunning
	StatusSucceeded = jobs.StatusSucceeded
	StatusFailed    = jobs.StatusFailed
	StatusCanceled  = jobs.StatusCanceled
)
