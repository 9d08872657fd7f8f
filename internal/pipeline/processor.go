package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/support/exception"
)

// ScoreProcessor translates one session action into one score update.
// It is stateless and pure: the same action always yields the same update,
// so re-processing a chunk after a rollback is harmless.
type ScoreProcessor struct{}

// NewScoreProcessor creates a ScoreProcessor.
func NewScoreProcessor() *ScoreProcessor {
	return &ScoreProcessor{}
}

// Process maps a "plus" action to score+amount and a "multi" action to
// score*amount, expressed uniformly as score := score*Multiply + Add.
// An unrecognized action type is a data error carrying the offending event
// id and user id; it is never retried.
func (p *ScoreProcessor) Process(ctx context.Context, action *model.SessionAction) (*model.ScoreUpdate, error) {
	const op = "ScoreProcessor.Process"

	switch action.ActionType {
	case model.ActionPlus:
		return &model.ScoreUpdate{
			UserID:   action.UserID,
			Add:      action.Amount,
			Multiply: decimal.NewFromInt(1),
		}, nil
	case model.ActionMulti:
		return &model.ScoreUpdate{
			UserID:   action.UserID,
			Add:      decimal.Zero,
			Multiply: action.Amount,
		}, nil
	default:
		return nil, exception.NewDataError(op,
			fmt.Sprintf("unknown action type '%s' (event id %d, user %d)", action.ActionType, action.ID, action.UserID),
			nil)
	}
}
