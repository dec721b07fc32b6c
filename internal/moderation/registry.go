// Package moderation tracks flags raised against document spans and the
// community votes that resolve them.
package moderation

import (
	"context"
	"strings"
	"time"

	"collabdoc/internal/moderation/model"
	"collabdoc/pkg/apperr"

	"github.com/google/uuid"
)

// Tx is the view of one flag inside its exclusive section. Writes become
// visible only if the enclosing WithFlag callback returns nil.
type Tx interface {
	Flag() model.Flag
	Vote(userID string) (value int, ok bool, err error)
	PutVote(userID string, value int) error
	SaveFlag(f model.Flag) error
}

type Repository interface {
	Create(ctx context.Context, f model.Flag) error
	Get(ctx context.Context, flagID string) (model.Flag, error)
	// ListByDocument returns every flag of docID from a single consistent
	// snapshot.
	ListByDocument(ctx context.Context, docID string) ([]model.Flag, error)
	// WithFlag runs fn while holding the flag exclusively. The section is
	// released on every exit path; a non-nil error discards fn's writes.
	WithFlag(ctx context.Context, flagID string, fn func(tx Tx) error) error
}

type CreateInput struct {
	DocumentID  string
	UserID      string
	StartOffset int
	EndOffset   int
	FlagType    string
	Comment     string
}

type Registry struct {
	repo Repository
	now  func() time.Time
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// Create raises a flag. Offsets are checked against contentLength, the
// document length at creation time, and are never re-anchored afterwards.
func (r *Registry) Create(ctx context.Context, in CreateInput, contentLength int) (model.Flag, error) {
	const op = "moderation.Create"
	if strings.TrimSpace(in.DocumentID) == "" {
		return model.Flag{}, apperr.Validationf(op, "document id is required")
	}
	flagType, err := model.ParseFlagType(in.FlagType)
	if err != nil {
		return model.Flag{}, apperr.Wrap(apperr.Validation, op, err, "invalid flag type")
	}
	if in.StartOffset < 0 || in.StartOffset >= in.EndOffset || in.EndOffset > contentLength {
		return model.Flag{}, apperr.Validationf(op, "invalid text selection [%d,%d) for content of length %d",
			in.StartOffset, in.EndOffset, contentLength)
	}

	f := model.Flag{
		ID:          uuid.NewString(),
		DocumentID:  in.DocumentID,
		UserID:      in.UserID,
		StartOffset: in.StartOffset,
		EndOffset:   in.EndOffset,
		FlagType:    flagType,
		Comment:     in.Comment,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.repo.Create(ctx, f); err != nil {
		return model.Flag{}, storageErr(op, err)
	}
	return f, nil
}

func (r *Registry) Get(ctx context.Context, flagID string) (model.Flag, error) {
	f, err := r.repo.Get(ctx, flagID)
	if err != nil {
		return model.Flag{}, storageErr("moderation.Get", err)
	}
	return f, nil
}

func (r *Registry) ListByDocument(ctx context.Context, docID string) ([]model.Flag, error) {
	flags, err := r.repo.ListByDocument(ctx, docID)
	if err != nil {
		return nil, storageErr("moderation.ListByDocument", err)
	}
	return flags, nil
}

// Unresolved returns the flags of docID still open for voting.
func (r *Registry) Unresolved(ctx context.Context, docID string) ([]model.Flag, error) {
	flags, err := r.ListByDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	var open []model.Flag
	for _, f := range flags {
		if !f.Resolved {
			open = append(open, f)
		}
	}
	return open, nil
}

func storageErr(op string, err error) error {
	if apperr.KindOf(err) != apperr.Storage {
		return err
	}
	return apperr.Wrap(apperr.Storage, op, err, "flag storage failure")
}
