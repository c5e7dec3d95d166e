// Package models defines the persistent entities shared by the briefing
// engine and the maintenance tasks.
package models

import (
	"time"

	"github.com/koompi/nimmit-assistant/pkg/brief"
)

// SessionStatus is the lifecycle state of a briefing session.
type SessionStatus string

// Session statuses. Transitions only go forward from active.
const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// BriefingSession is one client's conversation toward a complete brief.
type BriefingSession struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"clientId"`
	Status         SessionStatus   `json:"status"`
	Messages       []brief.Message `json:"messages"`
	ExtractedBrief *brief.Brief    `json:"extractedBrief"`
	MissingFields  []string        `json:"missingFields"`
	ContextSummary string          `json:"contextSummary,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsActive reports whether the session still accepts messages.
func (s *BriefingSession) IsActive() bool {
	return s.Status == SessionActive
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses.
const (
	JobPending    JobStatus = "pending"
	JobAssigned   JobStatus = "assigned"
	JobInProgress JobStatus = "in_progress"
	JobReview     JobStatus = "review"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// JobStatuses lists every job status in lifecycle order.
var JobStatuses = []JobStatus{JobPending, JobAssigned, JobInProgress, JobReview, JobCompleted, JobCancelled}

// IsTerminal reports whether no further work happens on a job in this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// TerminalJobStatuses returns the statuses for which IsTerminal holds.
func TerminalJobStatuses() []JobStatus {
	var out []JobStatus
	for _, st := range JobStatuses {
		if st.IsTerminal() {
			out = append(out, st)
		}
	}
	return out
}

// Job is a unit of work for a client, optionally assigned to a worker.
type Job struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"clientId"`
	WorkerID        string     `json:"workerId,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Status          JobStatus  `json:"status"`
	Rating          *float64   `json:"rating,omitempty"`
	ReviewFlag      bool       `json:"reviewFlag"`
	FlaggedAt       *time.Time `json:"flaggedAt,omitempty"`
	StatusChangedAt time.Time  `json:"statusChangedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Worker performs jobs. AvgRating and CurrentJobCount are derived fields
// maintained by the consistency tasks.
type Worker struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Skills          []string  `json:"skills"`
	AvgRating       *float64  `json:"avgRating,omitempty"`
	CurrentJobCount int       `json:"currentJobCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ClientPreference is a saved client setting used as briefing context.
type ClientPreference struct {
	ClientID  string    `json:"clientId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuditEntry records a state-mutating action for later review.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	SubjectID  string    `json:"subjectId,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	InputsHash string    `json:"inputsHash"`
	Outcome    string    `json:"outcome"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
