package models

import "time"

// AssignmentRecord is an append-style ledger entry representing one
// mentor-student pairing interval. Records are never deleted; unassignment
// stamps unassigned_at and the row becomes historical.
type AssignmentRecord struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	MentorID     string     `db:"mentor_id" json:"mentor_id"`
	SubmissionID *string    `db:"submission_id" json:"submission_id,omitempty"`
	MentorName   string     `db:"mentor_name" json:"mentor_name"`
	AssignedAt   time.Time  `db:"assigned_at" json:"assigned_at"`
	UnassignedAt *time.Time `db:"unassigned_at" json:"unassigned_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
}

// Active reports whether the pairing is still in effect.
func (r AssignmentRecord) Active() bool {
	return r.UnassignedAt == nil
}

// AssignmentDetail enriches ledger rows with descriptive fields for audit views.
type AssignmentDetail struct {
	AssignmentRecord
	StudentName   string  `db:"student_name" json:"student_name"`
	StudentEmail  string  `db:"student_email" json:"student_email"`
	DesiredDomain *string `db:"desired_domain" json:"desired_domain,omitempty"`
}

// ProgressNote is the latest-wins progress annotation attached to a ledger
// entry. No history of prior notes is kept.
type ProgressNote struct {
	AssignmentRecordID string     `db:"assignment_record_id" json:"assignment_record_id"`
	Status             string     `db:"status" json:"status"`
	CompletionDate     *time.Time `db:"completion_date" json:"completion_date,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
