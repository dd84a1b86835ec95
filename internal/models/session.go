package models

import "time"

// SessionStatus enumerates the lifecycle of a mentoring session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCanceled  SessionStatus = "canceled"
)

// SessionRecord is a mentor-created meeting entry. Status transitions are
// one-way: scheduled -> completed or scheduled -> canceled.
type SessionRecord struct {
	ID          string        `db:"id" json:"id"`
	MentorID    string        `db:"mentor_id" json:"mentor_id"`
	StudentID   string        `db:"student_id" json:"student_id"`
	Agenda      string        `db:"agenda" json:"agenda"`
	Description *string       `db:"description" json:"description,omitempty"`
	Timing      time.Time     `db:"timing" json:"timing"`
	MeetingRef  string        `db:"meeting_ref" json:"meeting_ref"`
	Status      SessionStatus `db:"status" json:"status"`
	CompletedAt *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CanceledAt  *time.Time    `db:"canceled_at" json:"canceled_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionDetail enriches session rows with participant names for audit views.
type SessionDetail struct {
	SessionRecord
	StudentName string `db:"student_name" json:"student_name"`
	MentorName  string `db:"mentor_name" json:"mentor_name"`
}

// SessionFilter captures filtering criteria for listing sessions.
type SessionFilter struct {
	MentorID  string
	StudentID string
	Status    SessionStatus
	Page      int
	PageSize  int
}
