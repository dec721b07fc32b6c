package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"collabdoc/internal/document/model"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"
)

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc model.Document, first model.Revision) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		logger.Sugar.Errorf("Failed to begin create for doc %s: %v", doc.ID, err)
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO documents
		(id, title, owner_id, content, revision, status, approval_score, classification_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.Title, doc.OwnerID, doc.Content, doc.Revision, string(doc.Status),
		doc.ApprovalScore, doc.ClassificationLevel, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document %s: %v", doc.ID, err)
		return err
	}
	if err = insertRevision(ctx, tx, first); err != nil {
		return err
	}
	return tx.Commit()
}

const documentColumns = `id, title, owner_id, content, revision, status, approval_score,
	classification_level, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (model.Document, error) {
	var doc model.Document
	var status string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.OwnerID, &doc.Content, &doc.Revision, &status,
		&doc.ApprovalScore, &doc.ClassificationLevel, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return model.Document{}, err
	}
	var err error
	if doc.Status, err = model.ParseStatus(status); err != nil {
		return model.Document{}, err
	}
	return doc, nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, docID string) (model.Document, error) {
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, apperr.NotFoundf("repository.GetDocument", "document %s not found", docID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load document %s: %v", docID, err)
		return model.Document{}, err
	}
	return doc, nil
}

// ListDocuments returns up to limit documents in status at or below
// maxLevel, newest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context, status model.Status, maxLevel, limit int) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE status = $1 AND classification_level <= $2 ORDER BY created_at DESC LIMIT $3`,
		string(status), maxLevel, limit)
	if err != nil {
		logger.Sugar.Errorf("Failed to list %s documents: %v", status, err)
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) AppendRevision(ctx context.Context, rev model.Revision, content string) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		logger.Sugar.Errorf("Failed to begin commit for doc %s: %v", rev.DocumentID, err)
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `UPDATE documents SET content = $1, revision = $2, updated_at = $3
		WHERE id = $4 AND revision = $5`,
		content, rev.ToRevision, rev.CreatedAt, rev.DocumentID, rev.FromRevision)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", rev.DocumentID, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		err = apperr.Conflictf("repository.AppendRevision", "document %s is no longer at revision %d", rev.DocumentID, rev.FromRevision)
		return err
	}
	if err = insertRevision(ctx, tx, rev); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *DocumentRepository) ListRevisions(ctx context.Context, docID string, from, to int) ([]model.Revision, error) {
	query := `SELECT document_id, from_revision, to_revision, patch, author, created_at
		FROM revisions WHERE document_id = $1 AND to_revision >= $2`
	args := []any{docID, from}
	if to > 0 {
		query += ` AND to_revision <= $3`
		args = append(args, to)
	}
	query += ` ORDER BY to_revision ASC`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Sugar.Errorf("Failed to list revisions for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	var revs []model.Revision
	for rows.Next() {
		var rev model.Revision
		if err := rows.Scan(&rev.DocumentID, &rev.FromRevision, &rev.ToRevision, &rev.Patch, &rev.Author, &rev.CreatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// UpdateReview stores the outcome of a review provided the document is still
// in the status the decision was made from.
func (r *DocumentRepository) UpdateReview(ctx context.Context, docID string, from model.Status, score int, status model.Status) error {
	result, err := r.DB.ExecContext(ctx, `UPDATE documents SET approval_score = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5`, score, string(status), time.Now().UTC(), docID, string(from))
	if err != nil {
		logger.Sugar.Errorf("Failed to update review state for doc %s: %v", docID, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.Conflictf("repository.UpdateReview", "document %s left status %s", docID, from)
	}
	return nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, rev model.Revision) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO revisions (document_id, from_revision, to_revision, patch, author, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rev.DocumentID, rev.FromRevision, rev.ToRevision, rev.Patch, rev.Author, rev.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert revision %d for doc %s: %v", rev.ToRevision, rev.DocumentID, err)
	}
	return err
}
