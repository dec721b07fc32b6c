package repository

import (
	"context"
	"sort"
	"sync"

	"collabdoc/internal/moderation"
	"collabdoc/internal/moderation/model"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/keylock"
)

type voteKey struct {
	flagID string
	userID string
}

// MemoryRepository keeps flags and votes in process memory. Each flag has
// its own exclusive section; reads of a document's flags see only committed
// sections.
type MemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]model.Flag
	votes map[voteKey]int
	locks *keylock.Map
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		flags: make(map[string]model.Flag),
		votes: make(map[voteKey]int),
		locks: keylock.New(),
	}
}

func (r *MemoryRepository) Create(_ context.Context, f model.Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[f.ID]; ok {
		return apperr.Conflictf("repository.Create", "flag %s already exists", f.ID)
	}
	r.flags[f.ID] = f
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, flagID string) (model.Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flags[flagID]
	if !ok {
		return model.Flag{}, apperr.NotFoundf("repository.Get", "flag %s not found", flagID)
	}
	return f, nil
}

func (r *MemoryRepository) ListByDocument(_ context.Context, docID string) ([]model.Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Flag
	for _, f := range r.flags {
		if f.DocumentID == docID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Votes returns the stored votes of flagID keyed by user.
func (r *MemoryRepository) Votes(flagID string) map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for k, v := range r.votes {
		if k.flagID == flagID {
			out[k.userID] = v
		}
	}
	return out
}

func (r *MemoryRepository) WithFlag(_ context.Context, flagID string, fn func(tx moderation.Tx) error) error {
	return r.locks.With(flagID, func() error {
		r.mu.RLock()
		f, ok := r.flags[flagID]
		r.mu.RUnlock()
		if !ok {
			return apperr.NotFoundf("repository.WithFlag", "flag %s not found", flagID)
		}

		tx := &memoryTx{repo: r, flag: f, staged: make(map[string]int)}
		if err := fn(tx); err != nil {
			return err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if tx.dirty {
			r.flags[flagID] = tx.flag
		}
		for userID, v := range tx.staged {
			r.votes[voteKey{flagID, userID}] = v
		}
		return nil
	})
}

type memoryTx struct {
	repo   *MemoryRepository
	flag   model.Flag
	staged map[string]int
	dirty  bool
}

func (t *memoryTx) Flag() model.Flag { return t.flag }

func (t *memoryTx) Vote(userID string) (int, bool, error) {
	if v, ok := t.staged[userID]; ok {
		return v, true, nil
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	v, ok := t.repo.votes[voteKey{t.flag.ID, userID}]
	return v, ok, nil
}

func (t *memoryTx) PutVote(userID string, value int) error {
	t.staged[userID] = value
	return nil
}

func (t *memoryTx) SaveFlag(f model.Flag) error {
	f.ID = t.flag.ID
	t.flag = f
	t.dirty = true
	return nil
}
