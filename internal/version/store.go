// Package version stores document revisions as textual patches and rebuilds
// any historical revision from them.
package version

import (
	"context"
	"time"

	"collabdoc/internal/document/model"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/keylock"
	"collabdoc/pkg/logger"
)

// Repository persists documents and their revision log.
type Repository interface {
	CreateDocument(ctx context.Context, doc model.Document, first model.Revision) error
	GetDocument(ctx context.Context, docID string) (model.Document, error)
	// AppendRevision stores rev and sets the document content to content,
	// atomically, provided the stored revision still equals rev.FromRevision.
	AppendRevision(ctx context.Context, rev model.Revision, content string) error
	// ListRevisions returns revisions with ToRevision in [from, to], ascending.
	// to <= 0 means no upper bound.
	ListRevisions(ctx context.Context, docID string, from, to int) ([]model.Revision, error)
}

type Store struct {
	repo  Repository
	locks *keylock.Map
	now   func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, locks: keylock.New(), now: time.Now}
}

// Create registers a new document at revision 1. Its first revision is the
// patch from the empty text to the initial content.
func (s *Store) Create(ctx context.Context, doc model.Document) (model.Document, error) {
	const op = "version.Create"
	if doc.ID == "" {
		return model.Document{}, apperr.Validationf(op, "document id is required")
	}
	now := s.now().UTC()
	doc.Revision = 1
	if doc.Status == "" {
		doc.Status = model.StatusDraft
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	first := model.Revision{
		DocumentID:   doc.ID,
		FromRevision: 0,
		ToRevision:   1,
		Patch:        MakePatch("", doc.Content),
		Author:       doc.OwnerID,
		CreatedAt:    now,
	}
	if err := s.repo.CreateDocument(ctx, doc, first); err != nil {
		return model.Document{}, storageErr(op, err, "create document")
	}
	return doc, nil
}

func (s *Store) Document(ctx context.Context, docID string) (model.Document, error) {
	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return model.Document{}, storageErr("version.Document", err, "load document")
	}
	return doc, nil
}

// Commit appends patch as the revision following baseRevision. It never
// merges: a base that is not the current revision is a conflict.
func (s *Store) Commit(ctx context.Context, docID string, baseRevision int, patch, author string) (model.Revision, error) {
	const op = "version.Commit"
	unlock := s.locks.Lock(docID)
	defer unlock()

	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return model.Revision{}, storageErr(op, err, "load document")
	}
	if baseRevision != doc.Revision {
		return model.Revision{}, apperr.Conflictf(op, "base revision %d does not match current revision %d", baseRevision, doc.Revision)
	}

	content, err := ApplyPatch(doc.Content, patch)
	if err != nil {
		logger.Sugar.Errorf("Patch for doc %s at revision %d rejected: %v", docID, baseRevision, err)
		return model.Revision{}, err
	}

	rev := model.Revision{
		DocumentID:   docID,
		FromRevision: baseRevision,
		ToRevision:   baseRevision + 1,
		Patch:        patch,
		Author:       author,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.AppendRevision(ctx, rev, content); err != nil {
		return model.Revision{}, storageErr(op, err, "append revision")
	}
	return rev, nil
}

// Reconstruct replays the revision log from the empty text up to target.
// It does not modify any stored state.
func (s *Store) Reconstruct(ctx context.Context, docID string, target int) (string, error) {
	const op = "version.Reconstruct"
	if target < 1 {
		return "", apperr.Validationf(op, "revision %d is not valid", target)
	}
	revs, err := s.repo.ListRevisions(ctx, docID, 1, target)
	if err != nil {
		return "", storageErr(op, err, "list revisions")
	}
	if len(revs) == 0 || revs[len(revs)-1].ToRevision < target {
		if _, err := s.repo.GetDocument(ctx, docID); err != nil {
			return "", storageErr(op, err, "load document")
		}
		return "", apperr.NotFoundf(op, "document %s has no revision %d", docID, target)
	}

	text := ""
	expected := 1
	for _, rev := range revs {
		if rev.ToRevision != expected {
			logger.Sugar.Errorf("Revision log for doc %s has a gap at %d", docID, expected)
			return "", apperr.New(apperr.PatchConflict, op, "revision log is not contiguous")
		}
		text, err = ApplyPatch(text, rev.Patch)
		if err != nil {
			logger.Sugar.Errorf("Failed to replay revision %d of doc %s: %v", rev.ToRevision, docID, err)
			return "", err
		}
		expected++
	}
	return text, nil
}

// Revisions returns the log of docID from revision from onwards.
func (s *Store) Revisions(ctx context.Context, docID string, from int) ([]model.Revision, error) {
	const op = "version.Revisions"
	if from < 1 {
		from = 1
	}
	if _, err := s.repo.GetDocument(ctx, docID); err != nil {
		return nil, storageErr(op, err, "load document")
	}
	revs, err := s.repo.ListRevisions(ctx, docID, from, 0)
	if err != nil {
		return nil, storageErr(op, err, "list revisions")
	}
	return revs, nil
}

// storageErr keeps taxonomy errors from the repository as they are and
// classifies anything else as a storage failure.
func storageErr(op string, err error, msg string) error {
	if k := apperr.KindOf(err); k != apperr.Storage {
		return err
	}
	logger.Sugar.Errorf("%s: %s: %v", op, msg, err)
	return apperr.Wrap(apperr.Storage, op, err, msg)
}
