// Package review governs a document's approval once it has been submitted
// for review.
package review

import (
	"context"

	"collabdoc/internal/document/model"
	"collabdoc/internal/metrics"
	flagmodel "collabdoc/internal/moderation/model"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/keylock"
	"collabdoc/pkg/logger"
)

const (
	ApprovalThreshold  = 10
	RejectionThreshold = -5
)

type DocumentStore interface {
	GetDocument(ctx context.Context, docID string) (model.Document, error)
	UpdateReview(ctx context.Context, docID string, from model.Status, score int, status model.Status) error
	ListDocuments(ctx context.Context, status model.Status, maxLevel, limit int) ([]model.Document, error)
}

type FlagLister interface {
	ListByDocument(ctx context.Context, docID string) ([]flagmodel.Flag, error)
}

type Workflow struct {
	docs    DocumentStore
	flags   FlagLister
	locks   *keylock.Map
	metrics *metrics.Metrics
}

func NewWorkflow(docs DocumentStore, flags FlagLister, m *metrics.Metrics) *Workflow {
	return &Workflow{docs: docs, flags: flags, locks: keylock.New(), metrics: m}
}

// NextStatus maps an approval score to the status it puts a document in.
func NextStatus(score int) model.Status {
	switch {
	case score <= RejectionThreshold:
		return model.StatusArchived
	case score >= ApprovalThreshold:
		return model.StatusApproved
	default:
		return model.StatusWaitingReview
	}
}

// SubmitForReview moves a draft into review.
func (w *Workflow) SubmitForReview(ctx context.Context, docID string) (model.Document, error) {
	const op = "review.SubmitForReview"
	unlock := w.locks.Lock(docID)
	defer unlock()

	doc, err := w.docs.GetDocument(ctx, docID)
	if err != nil {
		return model.Document{}, storageErr(op, err)
	}
	if doc.Status != model.StatusDraft {
		return model.Document{}, apperr.Conflictf(op, "document is %s, only drafts can be submitted", doc.Status)
	}
	if err := w.docs.UpdateReview(ctx, docID, doc.Status, doc.ApprovalScore, model.StatusWaitingReview); err != nil {
		return model.Document{}, storageErr(op, err)
	}
	doc.Status = model.StatusWaitingReview
	return doc, nil
}

// SubmitReview records one reviewer's verdict. The document must be waiting
// for review and have no open flags.
func (w *Workflow) SubmitReview(ctx context.Context, docID string, reviewerApproves bool) (model.Document, error) {
	const op = "review.SubmitReview"
	unlock := w.locks.Lock(docID)
	defer unlock()

	doc, err := w.docs.GetDocument(ctx, docID)
	if err != nil {
		return model.Document{}, storageErr(op, err)
	}
	if doc.Status.IsTerminal() {
		w.metrics.Review("rejected")
		return model.Document{}, apperr.Conflictf(op, "document is already %s", doc.Status)
	}
	if doc.Status != model.StatusWaitingReview {
		return model.Document{}, apperr.Validationf(op, "document has not been submitted for review")
	}

	flags, err := w.flags.ListByDocument(ctx, docID)
	if err != nil {
		return model.Document{}, storageErr(op, err)
	}
	for _, f := range flags {
		if !f.Resolved {
			w.metrics.Review("blocked")
			return model.Document{}, apperr.Validationf(op, "unresolved flags remain")
		}
	}

	score := doc.ApprovalScore - 1
	if reviewerApproves {
		score = doc.ApprovalScore + 1
	}
	status := NextStatus(score)
	if err := w.docs.UpdateReview(ctx, docID, doc.Status, score, status); err != nil {
		return model.Document{}, storageErr(op, err)
	}

	doc.ApprovalScore = score
	doc.Status = status
	w.metrics.Review(string(status))
	if status.IsTerminal() {
		logger.Sugar.Infof("Document %s reached %s with score %d", docID, status, score)
	}
	return doc, nil
}

// RecentlyApproved returns up to limit approved documents at or below
// maxLevel, newest first.
func (w *Workflow) RecentlyApproved(ctx context.Context, maxLevel, limit int) ([]model.Document, error) {
	docs, err := w.docs.ListDocuments(ctx, model.StatusApproved, maxLevel, limit)
	if err != nil {
		return nil, storageErr("review.RecentlyApproved", err)
	}
	return docs, nil
}

func storageErr(op string, err error) error {
	if apperr.KindOf(err) != apperr.Storage {
		return err
	}
	logger.Sugar.Errorf("%s: %v", op, err)
	return apperr.Wrap(apperr.Storage, op, err, "review storage failure")
}
