package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"collabdoc/internal/access"
	"collabdoc/internal/document/model"
	"collabdoc/internal/moderation"
	flagmodel "collabdoc/internal/moderation/model"
	"collabdoc/internal/review"
	"collabdoc/internal/version"
	"collabdoc/middleware"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"
	"collabdoc/socket"

	"github.com/google/uuid"
)

// Notifier pushes out-of-band changes to a document's connected editors.
type Notifier interface {
	Notify(docID, msgType string, payload any)
}

type DocumentService struct {
	Versions *version.Store
	Flags    *moderation.Registry
	Votes    *moderation.Aggregator
	Reviews  *review.Workflow
	Policy   access.Policy
	Hub      Notifier
}

func NewDocumentService(versions *version.Store, flags *moderation.Registry, votes *moderation.Aggregator,
	reviews *review.Workflow, policy access.Policy, hub Notifier) *DocumentService {
	return &DocumentService{Versions: versions, Flags: flags, Votes: votes, Reviews: reviews, Policy: policy, Hub: hub}
}

func (s *DocumentService) CreateDocument(ctx context.Context, caller middleware.Identity, req model.CreateDocRequest) (model.Document, error) {
	const op = "service.CreateDocument"
	if req.ClassificationLevel < 0 {
		return model.Document{}, apperr.Validationf(op, "classification level must not be negative")
	}
	if req.ClassificationLevel > caller.Level {
		return model.Document{}, apperr.Unauthorizedf(op, "cannot create a document above your classification level")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled Document"
	}
	doc, err := s.Versions.Create(ctx, model.Document{
		ID:                  uuid.NewString(),
		Title:               title,
		OwnerID:             caller.UserID,
		Content:             req.Content,
		ClassificationLevel: req.ClassificationLevel,
	})
	if err != nil {
		return model.Document{}, err
	}
	logger.Sugar.Infof("User %s created document %s", caller.UserID, doc.ID)
	return doc, nil
}

// GetDocument returns the current document if the caller is cleared for it.
func (s *DocumentService) GetDocument(ctx context.Context, caller middleware.Identity, docID string) (model.Document, error) {
	doc, err := s.Versions.Document(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	if caller.Level < doc.ClassificationLevel {
		return model.Document{}, apperr.Unauthorizedf("service.GetDocument", "classification level %d may not read this document", caller.Level)
	}
	return doc, nil
}

// ViewDocument returns the document with its approved flags as comments.
func (s *DocumentService) ViewDocument(ctx context.Context, caller middleware.Identity, docID string) (model.DocumentView, error) {
	doc, err := s.GetDocument(ctx, caller, docID)
	if err != nil {
		return model.DocumentView{}, err
	}
	flags, err := s.Flags.ListByDocument(ctx, docID)
	if err != nil {
		return model.DocumentView{}, err
	}
	view := model.DocumentView{Document: doc, Comments: []model.Comment{}}
	for _, f := range flags {
		if !f.Approved {
			continue
		}
		view.Comments = append(view.Comments, model.Comment{
			ID:       f.ID,
			UserID:   f.UserID,
			Date:     f.CreatedAt,
			Content:  f.Comment,
			NetVotes: f.NetVotes,
		})
	}
	return view, nil
}

// RecentlyApproved lists the newest approved documents the caller may read.
func (s *DocumentService) RecentlyApproved(ctx context.Context, caller middleware.Identity) ([]model.Document, error) {
	return s.Reviews.RecentlyApproved(ctx, caller.Level, model.RecentLimit)
}

func (s *DocumentService) RevisionText(ctx context.Context, caller middleware.Identity, docID string, rev int) (string, error) {
	if _, err := s.GetDocument(ctx, caller, docID); err != nil {
		return "", err
	}
	return s.Versions.Reconstruct(ctx, docID, rev)
}

func (s *DocumentService) Revisions(ctx context.Context, caller middleware.Identity, docID string, from int) ([]model.Revision, error) {
	if _, err := s.GetDocument(ctx, caller, docID); err != nil {
		return nil, err
	}
	return s.Versions.Revisions(ctx, docID, from)
}

// SubmitForReview is reserved to the document owner.
func (s *DocumentService) SubmitForReview(ctx context.Context, caller middleware.Identity, docID string) (model.Document, error) {
	doc, err := s.GetDocument(ctx, caller, docID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.OwnerID != caller.UserID {
		return model.Document{}, apperr.Unauthorizedf("service.SubmitForReview", "only the owner can submit a document for review")
	}
	doc, err = s.Reviews.SubmitForReview(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	s.notify(docID, socket.ReviewType, doc)
	return doc, nil
}

func (s *DocumentService) SubmitReview(ctx context.Context, caller middleware.Identity, req model.SubmitReviewRequest) (model.Document, error) {
	if _, err := s.editable(ctx, caller, req.DocID, "service.SubmitReview"); err != nil {
		return model.Document{}, err
	}
	doc, err := s.Reviews.SubmitReview(ctx, req.DocID, req.ReviewerApproves)
	if err != nil {
		return model.Document{}, err
	}
	logger.Sugar.Infof("Review by %s on %s: score %d, status %s", caller.UserID, req.DocID, doc.ApprovalScore, doc.Status)
	s.notify(req.DocID, socket.ReviewType, doc)
	return doc, nil
}

// CreateFlag is open to any reader cleared for the document. Offsets are
// checked against its current length in code points.
func (s *DocumentService) CreateFlag(ctx context.Context, caller middleware.Identity, req flagmodel.CreateFlagRequest) (flagmodel.Flag, error) {
	doc, err := s.GetDocument(ctx, caller, req.DocID)
	if err != nil {
		return flagmodel.Flag{}, err
	}
	f, err := s.Flags.Create(ctx, moderation.CreateInput{
		DocumentID:  req.DocID,
		UserID:      caller.UserID,
		StartOffset: req.StartOffset,
		EndOffset:   req.EndOffset,
		FlagType:    req.FlagType,
		Comment:     req.Comment,
	}, utf8.RuneCountInString(doc.Content))
	if err != nil {
		return flagmodel.Flag{}, err
	}
	s.notify(req.DocID, socket.FlagType, f)
	return f, nil
}

func (s *DocumentService) ListFlags(ctx context.Context, caller middleware.Identity, docID string) ([]flagmodel.Flag, error) {
	if _, err := s.GetDocument(ctx, caller, docID); err != nil {
		return nil, err
	}
	return s.Flags.ListByDocument(ctx, docID)
}

func (s *DocumentService) GetFlag(ctx context.Context, caller middleware.Identity, flagID string) (flagmodel.Flag, error) {
	f, err := s.Flags.Get(ctx, flagID)
	if err != nil {
		return flagmodel.Flag{}, err
	}
	if _, err := s.GetDocument(ctx, caller, f.DocumentID); err != nil {
		return flagmodel.Flag{}, err
	}
	return f, nil
}

// CastVote, like CreateFlag, only needs read clearance.
func (s *DocumentService) CastVote(ctx context.Context, caller middleware.Identity, req flagmodel.VoteRequest) (flagmodel.Flag, error) {
	if _, err := s.GetFlag(ctx, caller, req.FlagID); err != nil {
		return flagmodel.Flag{}, err
	}
	f, err := s.Votes.CastVote(ctx, req.FlagID, caller.UserID, req.Value)
	if err != nil {
		return flagmodel.Flag{}, err
	}
	if f.Resolved {
		logger.Sugar.Infof("Flag %s resolved (approved=%t) at %d votes", f.ID, f.Approved, f.NetVotes)
		s.notify(f.DocumentID, socket.FlagType, f)
	}
	return f, nil
}

// editable loads docID and checks the caller may take part in its editing
// workflow.
func (s *DocumentService) editable(ctx context.Context, caller middleware.Identity, docID, op string) (model.Document, error) {
	doc, err := s.Versions.Document(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	if !s.Policy.CanEdit(caller.Level, doc) {
		return model.Document{}, apperr.Unauthorizedf(op, "classification level %d may not modify this document", caller.Level)
	}
	return doc, nil
}

func (s *DocumentService) notify(docID, msgType string, payload any) {
	if s.Hub != nil {
		s.Hub.Notify(docID, msgType, payload)
	}
}
