package pipeline_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/pipeline"
	repositorysql "github.com/scorelab/scorefold/internal/repository/sql"
)

// newStoreConn opens an in-memory SQLite database holding both the store
// tables and the ledger tables. The pool is pinned to a single connection so
// the in-memory database survives for the whole test.
func newStoreConn(t *testing.T) database.Connection {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	conn, err := database.NewGormConnection(gormDB, "sqlite", "store_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, pipeline.EnsureStoreSchema(context.Background(), conn))
	return conn
}

// newLedger creates the ledger repository on the store connection, the way
// the service wires it, and ensures its schema.
func newLedger(t *testing.T, conn database.Connection) *repositorysql.ExecutionRepository {
	t.Helper()
	ledger := repositorysql.NewExecutionRepository(conn)
	require.NoError(t, ledger.EnsureSchema(context.Background()))
	return ledger
}

func action(id, userID int64, kind model.ActionKind, amount string) model.SessionAction {
	return model.SessionAction{
		ID:         id,
		UserID:     userID,
		ActionType: kind,
		Amount:     decimal.RequireFromString(amount),
	}
}

func seedActions(t *testing.T, conn database.Connection, actions ...model.SessionAction) {
	t.Helper()
	for i := range actions {
		require.NoError(t, conn.DB().Create(&actions[i]).Error)
	}
}

// loadScores reads the score store into a map keyed by user id.
func loadScores(t *testing.T, conn database.Connection) map[int64]decimal.Decimal {
	t.Helper()
	var rows []model.UserScore
	require.NoError(t, conn.DB().Find(&rows).Error)
	scores := make(map[int64]decimal.Decimal, len(rows))
	for _, row := range rows {
		scores[row.UserID] = row.Score
	}
	return scores
}

func assertScore(t *testing.T, scores map[int64]decimal.Decimal, userID int64, want string) {
	t.Helper()
	got, ok := scores[userID]
	require.True(t, ok, "user %d has no score row", userID)
	require.True(t, decimal.RequireFromString(want).Equal(got),
		"user %d: want score %s, got %s", userID, want, got)
}
