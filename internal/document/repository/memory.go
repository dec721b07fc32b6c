package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"collabdoc/internal/document/model"
	"collabdoc/pkg/apperr"
)

// MemoryRepository keeps documents and revisions in process memory. It is
// used when no database is configured and in tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	docs      map[string]model.Document
	revisions map[string][]model.Revision

	// FailAppend, when set, is returned by AppendRevision without touching
	// state.
	FailAppend error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:      make(map[string]model.Document),
		revisions: make(map[string][]model.Revision),
	}
}

func (r *MemoryRepository) CreateDocument(_ context.Context, doc model.Document, first model.Revision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return apperr.Conflictf("repository.CreateDocument", "document %s already exists", doc.ID)
	}
	r.docs[doc.ID] = doc
	r.revisions[doc.ID] = []model.Revision{first}
	return nil
}

func (r *MemoryRepository) GetDocument(_ context.Context, docID string) (model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	if !ok {
		return model.Document{}, apperr.NotFoundf("repository.GetDocument", "document %s not found", docID)
	}
	return doc, nil
}

func (r *MemoryRepository) ListDocuments(_ context.Context, status model.Status, maxLevel, limit int) ([]model.Document, error) {
	r.mu.RLock()
	var out []model.Document
	for _, doc := range r.docs {
		if doc.Status == status && doc.ClassificationLevel <= maxLevel {
			out = append(out, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) AppendRevision(_ context.Context, rev model.Revision, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAppend != nil {
		return r.FailAppend
	}
	doc, ok := r.docs[rev.DocumentID]
	if !ok {
		return apperr.NotFoundf("repository.AppendRevision", "document %s not found", rev.DocumentID)
	}
	if doc.Revision != rev.FromRevision {
		return apperr.Conflictf("repository.AppendRevision", "document %s is no longer at revision %d", rev.DocumentID, rev.FromRevision)
	}
	doc.Content = content
	doc.Revision = rev.ToRevision
	doc.UpdatedAt = rev.CreatedAt
	r.docs[rev.DocumentID] = doc
	r.revisions[rev.DocumentID] = append(r.revisions[rev.DocumentID], rev)
	return nil
}

func (r *MemoryRepository) ListRevisions(_ context.Context, docID string, from, to int) ([]model.Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Revision
	for _, rev := range r.revisions[docID] {
		if rev.ToRevision < from || (to > 0 && rev.ToRevision > to) {
			continue
		}
		out = append(out, rev)
	}
	return out, nil
}

func (r *MemoryRepository) UpdateReview(_ context.Context, docID string, from model.Status, score int, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return apperr.NotFoundf("repository.UpdateReview", "document %s not found", docID)
	}
	if doc.Status != from {
		return apperr.Conflictf("repository.UpdateReview", "document %s left status %s", docID, from)
	}
	doc.ApprovalScore = score
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	r.docs[docID] = doc
	return nil
}

// SetReviewState overrides score and status directly. Documents reach review
// through flows outside this service; tests and imports use it to seed them.
func (r *MemoryRepository) SetReviewState(docID string, score int, status model.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[docID]; ok {
		doc.ApprovalScore = score
		doc.Status = status
		r.docs[docID] = doc
	}
}
