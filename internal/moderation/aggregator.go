package moderation

import (
	"context"

	"collabdoc/internal/metrics"
	"collabdoc/internal/moderation/model"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"
)

type Aggregator struct {
	repo    Repository
	metrics *metrics.Metrics
}

func NewAggregator(repo Repository, m *metrics.Metrics) *Aggregator {
	return &Aggregator{repo: repo, metrics: m}
}

// CastVote records userID's vote on flagID and resolves the flag when a
// threshold is crossed. Votes on one flag are serialized; a resolved flag
// never changes again.
func (a *Aggregator) CastVote(ctx context.Context, flagID, userID string, value int) (model.Flag, error) {
	const op = "moderation.CastVote"
	if value != 1 && value != -1 {
		return model.Flag{}, apperr.Validationf(op, "vote must be +1 or -1, got %d", value)
	}
	if userID == "" {
		return model.Flag{}, apperr.Validationf(op, "user id is required")
	}

	var result model.Flag
	err := a.repo.WithFlag(ctx, flagID, func(tx Tx) error {
		f := tx.Flag()
		if f.Resolved {
			return apperr.Conflictf(op, "flag already resolved")
		}
		prior, hadPrior, err := tx.Vote(userID)
		if err != nil {
			return err
		}
		next, changed := Tally(f, prior, hadPrior, value)
		if !changed {
			result = f
			return nil
		}
		if err := tx.PutVote(userID, value); err != nil {
			return err
		}
		if err := tx.SaveFlag(next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		a.metrics.Vote(voteResult(err))
		if apperr.KindOf(err) == apperr.Storage {
			logger.Sugar.Errorf("Failed to cast vote on flag %s: %v", flagID, err)
			return model.Flag{}, storageErr(op, err)
		}
		return model.Flag{}, err
	}

	a.metrics.Vote("counted")
	if result.Resolved {
		a.metrics.FlagResolved(result.Approved)
		logger.Sugar.Infof("Flag %s resolved (approved=%t) at %d net votes", flagID, result.Approved, result.NetVotes)
	}
	return result, nil
}

// Tally applies one vote to f. A repeated vote with the same value changes
// nothing; a flipped vote moves the tally by twice the value. Thresholds are
// checked approve-first after the update.
func Tally(f model.Flag, prior int, hadPrior bool, value int) (model.Flag, bool) {
	switch {
	case !hadPrior:
		f.NetVotes += value
	case prior == value:
		return f, false
	default:
		f.NetVotes += 2 * value
	}

	if f.NetVotes >= model.ApproveThreshold {
		f.Resolved, f.Approved = true, true
	} else if f.NetVotes <= model.RejectThreshold {
		f.Resolved, f.Approved = true, false
	}
	return f, true
}

func voteResult(err error) string {
	switch apperr.KindOf(err) {
	case apperr.Conflict:
		return "resolved"
	case apperr.NotFound:
		return "not_found"
	default:
		return "error"
	}
}
