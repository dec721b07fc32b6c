package version

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"collabdoc/internal/document/model"
	"collabdoc/internal/document/repository"
	"collabdoc/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, content string) (*Store, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	store := NewStore(repo)
	_, err := store.Create(context.Background(), model.Document{ID: "doc-1", OwnerID: "owner", Content: content})
	require.NoError(t, err)
	return store, repo
}

func TestPatchRoundTrip(t *testing.T) {
	base := "The quick brown fox jumps over the lazy dog."
	updated := "The quick red fox leaped over the very lazy dog!"
	patch := MakePatch(base, updated)
	require.NotEmpty(t, patch)

	got, err := ApplyPatch(base, patch)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestEmptyPatchIsIdentity(t *testing.T) {
	assert.Equal(t, "", MakePatch("same", "same"))
	got, err := ApplyPatch("same", "")
	require.NoError(t, err)
	assert.Equal(t, "same", got)
}

func TestApplyPatchRejectsMismatchedBase(t *testing.T) {
	patch := MakePatch("alpha beta gamma", "alpha BETA gamma")
	_, err := ApplyPatch("completely different text", patch)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.PatchConflict))
}

func TestApplyPatchRejectsGarbage(t *testing.T) {
	_, err := ApplyPatch("abc", "@@ not a patch")
	assert.True(t, apperr.IsKind(err, apperr.PatchConflict))
}

func TestCreateStartsAtRevisionOne(t *testing.T) {
	store, _ := newTestStore(t, "hello")
	doc, err := store.Document(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Revision)
	assert.Equal(t, model.StatusDraft, doc.Status)

	text, err := store.Reconstruct(context.Background(), "doc-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestCommitAdvancesRevision(t *testing.T) {
	store, _ := newTestStore(t, "hello world")
	ctx := context.Background()

	rev, err := store.Commit(ctx, "doc-1", 1, MakePatch("hello world", "hello brave world"), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rev.FromRevision)
	assert.Equal(t, 2, rev.ToRevision)
	assert.Equal(t, "u1", rev.Author)

	doc, err := store.Document(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Revision)
	assert.Equal(t, "hello brave world", doc.Content)
}

func TestCommitStaleBaseConflicts(t *testing.T) {
	store, _ := newTestStore(t, "abc")
	ctx := context.Background()
	_, err := store.Commit(ctx, "doc-1", 1, MakePatch("abc", "abcd"), "u1")
	require.NoError(t, err)

	_, err = store.Commit(ctx, "doc-1", 1, MakePatch("abc", "xabc"), "u2")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = store.Commit(ctx, "doc-1", 5, "", "u2")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestCommitStorageFailureLeavesStateUnchanged(t *testing.T) {
	store, repo := newTestStore(t, "abc")
	ctx := context.Background()
	repo.FailAppend = errors.New("connection reset")

	_, err := store.Commit(ctx, "doc-1", 1, MakePatch("abc", "abcd"), "u1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Storage))
	assert.True(t, apperr.Retriable(err))

	doc, err := store.Document(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Revision)
	assert.Equal(t, "abc", doc.Content)
}

func TestCommitCorruptPatch(t *testing.T) {
	store, _ := newTestStore(t, "abc")
	_, err := store.Commit(context.Background(), "doc-1", 1, MakePatch("zzzzzz yyyy", "zzzzzz xxxx"), "u1")
	assert.True(t, apperr.IsKind(err, apperr.PatchConflict))
}

func TestReconstructBounds(t *testing.T) {
	store, _ := newTestStore(t, "abc")
	ctx := context.Background()

	_, err := store.Reconstruct(ctx, "doc-1", 2)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = store.Reconstruct(ctx, "doc-1", 0)
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	_, err = store.Reconstruct(ctx, "nope", 1)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

// Every stored patch must turn the text at r into exactly the text at r+1,
// and replaying must never change what is stored.
func TestReconstructMatchesEveryCommit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	content := "Containment procedures for the archive."
	store, _ := newTestStore(t, content)
	ctx := context.Background()

	history := []string{content}
	words := []string{"alpha", " ", "beta", "\n", "gamma", "delta", "--"}
	for i := 0; i < 40; i++ {
		next := mutate(rng, history[len(history)-1], words)
		rev, err := store.Commit(ctx, "doc-1", len(history), MakePatch(history[len(history)-1], next), fmt.Sprintf("u%d", i%3))
		require.NoError(t, err)
		require.Equal(t, len(history)+1, rev.ToRevision)
		history = append(history, next)
	}

	for r := 1; r <= len(history); r++ {
		text, err := store.Reconstruct(ctx, "doc-1", r)
		require.NoError(t, err)
		assert.Equal(t, history[r-1], text, "revision %d", r)
	}

	revs, err := store.Revisions(ctx, "doc-1", 2)
	require.NoError(t, err)
	for _, rev := range revs {
		applied, err := ApplyPatch(history[rev.FromRevision-1], rev.Patch)
		require.NoError(t, err)
		assert.Equal(t, history[rev.ToRevision-1], applied)
	}

	again, err := store.Reconstruct(ctx, "doc-1", len(history))
	require.NoError(t, err)
	assert.Equal(t, history[len(history)-1], again)
	doc, err := store.Document(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, len(history), doc.Revision)
}

func mutate(rng *rand.Rand, s string, words []string) string {
	runes := []rune(s)
	pos := 0
	if len(runes) > 0 {
		pos = rng.Intn(len(runes) + 1)
	}
	switch rng.Intn(3) {
	case 0:
		w := []rune(words[rng.Intn(len(words))])
		return string(runes[:pos]) + string(w) + string(runes[pos:])
	case 1:
		if pos >= len(runes) {
			return s + words[rng.Intn(len(words))]
		}
		end := pos + 1 + rng.Intn(len(runes)-pos)
		return string(runes[:pos]) + string(runes[end:])
	default:
		if pos >= len(runes) {
			return s + "!"
		}
		return string(runes[:pos]) + words[rng.Intn(len(words))] + string(runes[pos+1:])
	}
}
