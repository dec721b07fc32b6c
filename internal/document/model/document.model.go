package model

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusDraft         Status = "Draft"
	StatusWaitingReview Status = "WaitingReview"
	StatusApproved      Status = "Approved"
	StatusArchived      Status = "Archived"
)

// IsTerminal reports whether no further review may change the status.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusArchived
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusWaitingReview, StatusApproved, StatusArchived:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

type Document struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	OwnerID             string    `json:"owner_id"`
	Content             string    `json:"content"`
	Revision            int       `json:"revision"`
	Status              Status    `json:"status"`
	ApprovalScore       int       `json:"approval_score"`
	ClassificationLevel int       `json:"classification_level"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Revision is the immutable record of one accepted change.
type Revision struct {
	DocumentID   string    `json:"document_id"`
	FromRevision int       `json:"from_revision"`
	ToRevision   int       `json:"to_revision"`
	Patch        string    `json:"patch"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"timestamp"`
}

// RecentLimit caps the recently approved listing.
const RecentLimit = 3

// Comment is an approved flag surfaced alongside the document it annotates.
type Comment struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Date     time.Time `json:"date"`
	Content  string    `json:"content"`
	NetVotes int       `json:"net_votes"`
}

type DocumentView struct {
	Document
	Comments []Comment `json:"comments"`
}

type CreateDocRequest struct {
	Title               string `json:"title"`
	Content             string `json:"content"`
	ClassificationLevel int    `json:"classification_level"`
}

type CreateDocResponse struct {
	DocID    string `json:"document_id"`
	Revision int    `json:"revision"`
}

type SubmitReviewRequest struct {
	DocID            string `json:"document_id"`
	ReviewerApproves bool   `json:"reviewer_approves"`
}

type SubmitForReviewRequest struct {
	DocID string `json:"document_id"`
}

type RevisionTextResponse struct {
	DocID    string `json:"document_id"`
	Revision int    `json:"revision"`
	Content  string `json:"content"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
