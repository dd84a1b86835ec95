package models

import "time"

// HistoryEntryType discriminates the source of a merged history row.
type HistoryEntryType string

const (
	HistoryEntryAssignment HistoryEntryType = "assignment"
	HistoryEntrySession    HistoryEntryType = "session"
)

// HistoryEntry is one row of the merged chronological audit view. Assignment
// ledger rows and completed sessions are flattened into the same shape.
type HistoryEntry struct {
	Type         HistoryEntryType `json:"type"`
	RecordID     string           `json:"record_id"`
	StudentID    string           `json:"student_id"`
	StudentName  string           `json:"student_name"`
	MentorID     string           `json:"mentor_id"`
	MentorName   string           `json:"mentor_name"`
	Domain       *string          `json:"domain,omitempty"`
	Agenda       *string          `json:"agenda,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	UnassignedAt *time.Time       `json:"unassigned_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
}

// SortTime returns the timestamp used for chronological ordering: completion
// time when present, otherwise the start of the record.
func (e HistoryEntry) SortTime() time.Time {
	if e.CompletedAt != nil {
		return *e.CompletedAt
	}
	return e.StartedAt
}
