package pipeline_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/pipeline"
	"github.com/scorelab/scorefold/internal/support/exception"
)

func TestScoreProcessor_PlusBecomesAddition(t *testing.T) {
	p := pipeline.NewScoreProcessor()
	a := action(1, 42, model.ActionPlus, "2.50")

	update, err := p.Process(context.Background(), &a)
	require.NoError(t, err)

	assert.Equal(t, int64(42), update.UserID)
	assert.True(t, decimal.RequireFromString("2.50").Equal(update.Add))
	assert.True(t, decimal.NewFromInt(1).Equal(update.Multiply))
}

func TestScoreProcessor_MultiBecomesMultiplication(t *testing.T) {
	p := pipeline.NewScoreProcessor()
	a := action(2, 42, model.ActionMulti, "3")

	update, err := p.Process(context.Background(), &a)
	require.NoError(t, err)

	assert.Equal(t, int64(42), update.UserID)
	assert.True(t, update.Add.IsZero())
	assert.True(t, decimal.NewFromInt(3).Equal(update.Multiply))
}

func TestScoreProcessor_Deterministic(t *testing.T) {
	p := pipeline.NewScoreProcessor()
	a := action(3, 7, model.ActionPlus, "1.25")

	first, err := p.Process(context.Background(), &a)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), &a)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.True(t, first.Add.Equal(second.Add))
	assert.True(t, first.Multiply.Equal(second.Multiply))
}

func TestScoreProcessor_UnknownActionTypeIsDataError(t *testing.T) {
	p := pipeline.NewScoreProcessor()
	a := action(99, 7, model.ActionKind("divide"), "2")

	update, err := p.Process(context.Background(), &a)
	require.Error(t, err)
	assert.Nil(t, update)
	assert.True(t, exception.IsDataError(err))
	assert.False(t, exception.IsRetryable(err))
	// The failure message must identify the offending event.
	assert.Contains(t, err.Error(), "event id 99")
	assert.Contains(t, err.Error(), "user 7")
	assert.Contains(t, err.Error(), "divide")
}
