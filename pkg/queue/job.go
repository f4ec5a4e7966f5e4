package queue

import "time"

// Status is the lifecycle state of an EmailJob.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusScheduled,
	StatusProcessing,
	StatusSent,
	StatusFailed,
	StatusCancelled,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusProcessing, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition happens without an external action.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// Active reports whether the job still counts as an enrollment.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusProcessing
}

// Recipient is the addressee of a job, captured when the job is created.
// The email stored on the job is the one used at send time.
type Recipient struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// TemplateRef points at the template a job renders.
type TemplateRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// SequenceRef ties a job to one step of a sequence.
type SequenceRef struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	StepIndex int    `json:"step_index"`
}

// EmailJob is one scheduled send of one template to one recipient.
type EmailJob struct {
	ScheduledFor time.Time    `json:"scheduled_for"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastAttempt  *time.Time   `json:"last_attempt,omitempty"`
	Sequence     *SequenceRef `json:"sequence,omitempty"`
	Vars         Vars         `json:"variables,omitempty"`
	Recipient    Recipient    `json:"recipient"`
	Template     TemplateRef  `json:"template"`
	ID           string       `json:"id"`
	Status       Status       `json:"status"`
	Error        string       `json:"error,omitempty"`
	Attempts     int          `json:"attempts"`
}

// Due reports whether the job is eligible for a claim at now.
func (j *EmailJob) Due(now time.Time, maxAttempts int) bool {
	return j.Status == StatusScheduled && !j.ScheduledFor.After(now) && j.Attempts < maxAttempts
}

// Stats is a snapshot of the queue by status.
type Stats struct {
	Scheduled  int `json:"scheduled"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Retryable  int `json:"retryable"`
	Total      int `json:"total"`
}

// Set records the count for a status and keeps Total in step.
func (s *Stats) Set(status Status, n int) {
	switch status {
	case StatusScheduled:
		s.Scheduled = n
	case StatusProcessing:
		s.Processing = n
	case StatusSent:
		s.Sent = n
	case StatusFailed:
		s.Failed = n
	case StatusCancelled:
		s.Cancelled = n
	default:
		return
	}
	s.Total = s.Scheduled + s.Processing + s.Sent + s.Failed + s.Cancelled
}

// Get returns the count recorded for status.
func (s Stats) Get(status Status) int {
	switch status {
	case StatusScheduled:
		return s.Scheduled
	case StatusProcessing:
		return s.Processing
	case StatusSent:
		return s.Sent
	case StatusFailed:
		return s.Failed
	case StatusCancelled:
		return s.Cancelled
	}
	return 0
}
