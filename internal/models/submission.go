package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// SubmissionStatus enumerates the lifecycle states of an interest submission.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionAssigned   SubmissionStatus = "assigned"
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionCompleted  SubmissionStatus = "completed"
	SubmissionRejected   SubmissionStatus = "rejected"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionAssigned, SubmissionInProgress, SubmissionCompleted, SubmissionRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from the status.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionCompleted || s == SubmissionRejected
}

// Submission is a student's domain-specific interest declaration awaiting
// mentor pairing. One row per (student, normalized domain).
type Submission struct {
	ID            string           `db:"id" json:"id"`
	StudentID     *string          `db:"student_id" json:"student_id,omitempty"`
	StudentEmail  string           `db:"student_email" json:"student_email"`
	StudentName   string           `db:"student_name" json:"student_name"`
	Interests     pq.StringArray   `db:"interests" json:"interests"`
	DesiredDomain string           `db:"desired_domain" json:"desired_domain"`
	DomainKey     string           `db:"domain_key" json:"-"`
	Goals         string           `db:"goals" json:"goals"`
	ResumeRef     *string          `db:"resume_ref" json:"resume_ref,omitempty"`
	Status        SubmissionStatus `db:"status" json:"status"`
	MentorID      *string          `db:"mentor_id" json:"mentor_id,omitempty"`
	MentorName    *string          `db:"mentor_name" json:"mentor_name,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// SubmissionFilter captures filtering criteria for listing submissions.
type SubmissionFilter struct {
	Status    SubmissionStatus
	StudentID string
	MentorID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// NormalizeDomain canonicalises a desired-domain value for uniqueness checks.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
