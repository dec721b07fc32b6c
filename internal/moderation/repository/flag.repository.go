package repository

import (
	"context"
	"database/sql"
	"errors"

	"collabdoc/internal/moderation"
	"collabdoc/internal/moderation/model"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"
)

const flagColumns = `id, document_id, user_id, start_offset, end_offset, flag_type, comment,
	net_votes, resolved, approved, created_at`

type FlagRepository struct {
	DB *sql.DB
}

func NewFlagRepository(db *sql.DB) *FlagRepository {
	return &FlagRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(row rowScanner) (model.Flag, error) {
	var f model.Flag
	var flagType string
	err := row.Scan(&f.ID, &f.DocumentID, &f.UserID, &f.StartOffset, &f.EndOffset, &flagType, &f.Comment,
		&f.NetVotes, &f.Resolved, &f.Approved, &f.CreatedAt)
	if err != nil {
		return model.Flag{}, err
	}
	f.FlagType = model.FlagType(flagType)
	return f, nil
}

func (r *FlagRepository) Create(ctx context.Context, f model.Flag) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO flags (`+flagColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.DocumentID, f.UserID, f.StartOffset, f.EndOffset, string(f.FlagType), f.Comment,
		f.NetVotes, f.Resolved, f.Approved, f.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create flag on doc %s: %v", f.DocumentID, err)
	}
	return err
}

func (r *FlagRepository) Get(ctx context.Context, flagID string) (model.Flag, error) {
	f, err := scanFlag(r.DB.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM flags WHERE id = $1`, flagID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Flag{}, apperr.NotFoundf("repository.Get", "flag %s not found", flagID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load flag %s: %v", flagID, err)
	}
	return f, err
}

func (r *FlagRepository) ListByDocument(ctx context.Context, docID string) ([]model.Flag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+flagColumns+` FROM flags WHERE document_id = $1 ORDER BY created_at ASC`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list flags for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	var flags []model.Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// WithFlag locks the flag row for the duration of fn.
func (r *FlagRepository) WithFlag(ctx context.Context, flagID string, fn func(tx moderation.Tx) error) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		logger.Sugar.Errorf("Failed to begin vote transaction for flag %s: %v", flagID, err)
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	f, err := scanFlag(tx.QueryRowContext(ctx, `SELECT `+flagColumns+` FROM flags WHERE id = $1 FOR UPDATE`, flagID))
	if errors.Is(err, sql.ErrNoRows) {
		err = apperr.NotFoundf("repository.WithFlag", "flag %s not found", flagID)
		return err
	}
	if err != nil {
		return err
	}

	if err = fn(&sqlTx{ctx: ctx, tx: tx, flag: f}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	ctx  context.Context
	tx   *sql.Tx
	flag model.Flag
}

func (t *sqlTx) Flag() model.Flag { return t.flag }

func (t *sqlTx) Vote(userID string) (int, bool, error) {
	var value int
	err := t.tx.QueryRowContext(t.ctx, `SELECT vote FROM flag_votes WHERE flag_id = $1 AND user_id = $2`,
		t.flag.ID, userID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (t *sqlTx) PutVote(userID string, value int) error {
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO flag_votes (flag_id, user_id, vote) VALUES ($1, $2, $3)
		ON CONFLICT (flag_id, user_id) DO UPDATE SET vote = EXCLUDED.vote`, t.flag.ID, userID, value)
	return err
}

func (t *sqlTx) SaveFlag(f model.Flag) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE flags SET net_votes = $1, resolved = $2, approved = $3 WHERE id = $4`,
		f.NetVotes, f.Resolved, f.Approved, t.flag.ID)
	if err == nil {
		t.flag = f
	}
	return err
}
