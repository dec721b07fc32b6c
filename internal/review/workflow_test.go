package review

import (
	"context"
	"testing"

	"collabdoc/internal/document/model"
	"collabdoc/internal/document/repository"
	"collabdoc/internal/moderation"
	flagrepo "collabdoc/internal/moderation/repository"
	"collabdoc/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	docs     *repository.MemoryRepository
	flags    *flagrepo.MemoryRepository
	registry *moderation.Registry
	votes    *moderation.Aggregator
	workflow *Workflow
}

func newFixture(t *testing.T, score int, status model.Status) fixture {
	t.Helper()
	docs := repository.NewMemoryRepository()
	flags := flagrepo.NewMemoryRepository()
	require.NoError(t, docs.CreateDocument(context.Background(),
		model.Document{ID: "doc-1", Content: "some text here", Revision: 1, Status: model.StatusDraft},
		model.Revision{DocumentID: "doc-1", ToRevision: 1}))
	docs.SetReviewState("doc-1", score, status)
	return fixture{
		docs:     docs,
		flags:    flags,
		registry: moderation.NewRegistry(flags),
		votes:    moderation.NewAggregator(flags, nil),
		workflow: NewWorkflow(docs, flags, nil),
	}
}

func TestScoreReachesApproval(t *testing.T) {
	fx := newFixture(t, 8, model.StatusWaitingReview)
	ctx := context.Background()

	doc, err := fx.workflow.SubmitReview(ctx, "doc-1", true)
	require.NoError(t, err)
	assert.Equal(t, 9, doc.ApprovalScore)
	assert.Equal(t, model.StatusWaitingReview, doc.Status)

	doc, err = fx.workflow.SubmitReview(ctx, "doc-1", true)
	require.NoError(t, err)
	assert.Equal(t, 10, doc.ApprovalScore)
	assert.Equal(t, model.StatusApproved, doc.Status)

	_, err = fx.workflow.SubmitReview(ctx, "doc-1", true)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	_, err = fx.workflow.SubmitReview(ctx, "doc-1", false)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	stored, err := fx.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
	assert.Equal(t, 10, stored.ApprovalScore)
}

func TestScoreReachesArchive(t *testing.T) {
	fx := newFixture(t, -3, model.StatusWaitingReview)
	ctx := context.Background()

	doc, err := fx.workflow.SubmitReview(ctx, "doc-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingReview, doc.Status)

	doc, err = fx.workflow.SubmitReview(ctx, "doc-1", false)
	require.NoError(t, err)
	assert.Equal(t, -5, doc.ApprovalScore)
	assert.Equal(t, model.StatusArchived, doc.Status)

	_, err = fx.workflow.SubmitReview(ctx, "doc-1", true)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestUnresolvedFlagsBlockReview(t *testing.T) {
	fx := newFixture(t, 0, model.StatusWaitingReview)
	ctx := context.Background()

	f, err := fx.registry.Create(ctx, moderation.CreateInput{
		DocumentID: "doc-1", StartOffset: 0, EndOffset: 4, FlagType: "outdated",
	}, 14)
	require.NoError(t, err)

	_, err = fx.workflow.SubmitReview(ctx, "doc-1", true)
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	stored, err := fx.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ApprovalScore, "a blocked review must not touch the score")

	for _, u := range []string{"a", "b", "c"} {
		_, err := fx.votes.CastVote(ctx, f.ID, u, -1)
		require.NoError(t, err)
	}
	doc, err := fx.workflow.SubmitReview(ctx, "doc-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ApprovalScore)
}

func TestDraftCannotBeReviewed(t *testing.T) {
	fx := newFixture(t, 0, model.StatusDraft)
	ctx := context.Background()

	_, err := fx.workflow.SubmitReview(ctx, "doc-1", true)
	assert.True(t, apperr.IsKind(err, apperr.Validation))

	doc, err := fx.workflow.SubmitForReview(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingReview, doc.Status)

	_, err = fx.workflow.SubmitForReview(ctx, "doc-1")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = fx.workflow.SubmitReview(ctx, "doc-1", true)
	assert.NoError(t, err)
}

func TestUnknownDocument(t *testing.T) {
	fx := newFixture(t, 0, model.StatusWaitingReview)
	_, err := fx.workflow.SubmitReview(context.Background(), "nope", true)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

// Alternating verdicts must never move a document out of a terminal state.
func TestTerminalStatesAreSticky(t *testing.T) {
	for _, start := range []int{9, -4} {
		fx := newFixture(t, start, model.StatusWaitingReview)
		ctx := context.Background()
		approves := start > 0

		doc, err := fx.workflow.SubmitReview(ctx, "doc-1", approves)
		require.NoError(t, err)
		require.True(t, doc.Status.IsTerminal())
		terminal := doc.Status

		for i := 0; i < 10; i++ {
			_, err := fx.workflow.SubmitReview(ctx, "doc-1", i%2 == 0)
			assert.True(t, apperr.IsKind(err, apperr.Conflict))
		}
		stored, err := fx.docs.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, terminal, stored.Status)
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, model.StatusArchived, NextStatus(-5))
	assert.Equal(t, model.StatusArchived, NextStatus(-9))
	assert.Equal(t, model.StatusWaitingReview, NextStatus(-4))
	assert.Equal(t, model.StatusWaitingReview, NextStatus(9))
	assert.Equal(t, model.StatusApproved, NextStatus(10))
}
