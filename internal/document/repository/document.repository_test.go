package repository

import (
	"context"
	"testing"
	"time"

	"collabdoc/internal/document/model"
	"collabdoc/pkg/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docColumns = []string{"id", "title", "owner_id", "content", "revision", "status", "approval_score",
	"classification_level", "created_at", "updated_at"}

func TestGetDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT id, title, owner_id, content, revision, status").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc-1", "Title", "owner", "hello", 3, "WaitingReview", 4, 2, now, now))

	doc, err := repo.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Revision)
	assert.Equal(t, model.StatusWaitingReview, doc.Status)
	assert.Equal(t, 4, doc.ApprovalScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT id, title").WithArgs("missing").WillReturnRows(sqlmock.NewRows(docColumns))

	_, err = repo.GetDocument(context.Background(), "missing")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestAppendRevisionCommitsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)
	rev := model.Revision{DocumentID: "doc-1", FromRevision: 3, ToRevision: 4, Patch: "p", Author: "u1", CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET content = \\$1, revision = \\$2").
		WithArgs("new", 4, rev.CreatedAt, "doc-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO revisions").
		WithArgs("doc-1", 3, 4, "p", "u1", rev.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.AppendRevision(context.Background(), rev, "new"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRevisionStaleBaseRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)
	rev := model.Revision{DocumentID: "doc-1", FromRevision: 3, ToRevision: 4, CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET content").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.AppendRevision(context.Background(), rev, "new")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRevisionsBounded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT document_id, from_revision, to_revision, patch, author, created_at").
		WithArgs("doc-1", 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "from_revision", "to_revision", "patch", "author", "created_at"}).
			AddRow("doc-1", 0, 1, "a", "u1", now).
			AddRow("doc-1", 1, 2, "b", "u2", now))

	revs, err := repo.ListRevisions(context.Background(), "doc-1", 1, 2)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "b", revs[1].Patch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReviewGuardsStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE documents SET approval_score").
		WithArgs(10, "Approved", sqlmock.AnyArg(), "doc-1", "WaitingReview").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateReview(context.Background(), "doc-1", model.StatusWaitingReview, 10, model.StatusApproved)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepositoryRejectsStaleAppend(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doc := model.Document{ID: "d", Revision: 1, Status: model.StatusDraft}
	require.NoError(t, repo.CreateDocument(ctx, doc, model.Revision{DocumentID: "d", ToRevision: 1}))

	require.NoError(t, repo.AppendRevision(ctx, model.Revision{DocumentID: "d", FromRevision: 1, ToRevision: 2}, "x"))
	err := repo.AppendRevision(ctx, model.Revision{DocumentID: "d", FromRevision: 1, ToRevision: 2}, "y")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	got, err := repo.GetDocument(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)
	assert.Equal(t, 2, got.Revision)
}

func TestListDocumentsFiltersByStatusAndLevel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDocumentRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT id, title, owner_id(.|\n)*WHERE status = \\$1 AND classification_level <= \\$2 ORDER BY created_at DESC LIMIT \\$3").
		WithArgs("Approved", 2, 3).
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc-2", "Newer", "owner", "b", 4, "Approved", 10, 2, now, now).
			AddRow("doc-1", "Older", "owner", "a", 2, "Approved", 11, 1, now.Add(-time.Hour), now))

	docs, err := repo.ListDocuments(context.Background(), model.StatusApproved, 2, 3)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-2", docs[0].ID)
	assert.Equal(t, model.StatusApproved, docs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryListDocumentsNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, level := range []int{1, 1, 3, 1, 1} {
		doc := model.Document{
			ID:                  string(rune('a' + i)),
			Status:              model.StatusApproved,
			ClassificationLevel: level,
			CreatedAt:           base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateDocument(ctx, doc, model.Revision{DocumentID: doc.ID, ToRevision: 1}))
	}
	require.NoError(t, repo.CreateDocument(ctx,
		model.Document{ID: "draft", Status: model.StatusDraft, CreatedAt: base.Add(time.Hour)},
		model.Revision{DocumentID: "draft", ToRevision: 1}))

	docs, err := repo.ListDocuments(ctx, model.StatusApproved, 2, 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"e", "d", "b"}, ids)
}
