package pipeline_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/pipeline"
)

func writeUpdates(t *testing.T, conn database.Connection, updates []*model.ScoreUpdate) {
	t.Helper()

	writer, err := pipeline.NewScoreWriter(conn)
	require.NoError(t, err)

	txManager := database.NewTxManager(conn)
	tx, err := txManager.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), tx, updates))
	require.NoError(t, txManager.Commit(tx))
}

func TestScoreWriter_FoldsInOrder(t *testing.T) {
	conn := newStoreConn(t)

	one := decimal.NewFromInt(1)
	two := decimal.NewFromInt(2)
	three := decimal.NewFromInt(3)

	// User 1: plus 2 then multi 3 folds to (0+2)*3 = 6.
	// User 2: the reverse order folds to 0*3+2 = 2.
	writeUpdates(t, conn, []*model.ScoreUpdate{
		{UserID: 1, Add: two, Multiply: one},
		{UserID: 1, Add: decimal.Zero, Multiply: three},
		{UserID: 2, Add: decimal.Zero, Multiply: three},
		{UserID: 2, Add: two, Multiply: one},
	})

	scores := loadScores(t, conn)
	assertScore(t, scores, 1, "6")
	assertScore(t, scores, 2, "2")
}

func TestScoreWriter_MissingRowStartsAtZero(t *testing.T) {
	conn := newStoreConn(t)

	// A multiply against an absent row yields 0, and the row exists after.
	writeUpdates(t, conn, []*model.ScoreUpdate{
		{UserID: 9, Add: decimal.Zero, Multiply: decimal.NewFromInt(5)},
	})

	scores := loadScores(t, conn)
	assertScore(t, scores, 9, "0")
}

func TestScoreWriter_ReapplyingChunkIsIdempotentPerCommit(t *testing.T) {
	conn := newStoreConn(t)

	chunk := []*model.ScoreUpdate{
		{UserID: 4, Add: decimal.NewFromInt(10), Multiply: decimal.NewFromInt(1)},
		{UserID: 4, Add: decimal.Zero, Multiply: decimal.NewFromInt(2)},
	}

	// A rolled-back attempt leaves no trace; the committed retry applies once.
	txManager := database.NewTxManager(conn)
	writer, err := pipeline.NewScoreWriter(conn)
	require.NoError(t, err)

	tx, err := txManager.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), tx, chunk))
	require.NoError(t, txManager.Rollback(tx))

	writeUpdates(t, conn, chunk)

	scores := loadScores(t, conn)
	assertScore(t, scores, 4, "20")
}

func TestScoreWriter_UnsupportedDialect(t *testing.T) {
	conn := newStoreConn(t)
	gormConn, err := database.NewGormConnection(conn.DB(), "oracle", "unsupported")
	require.NoError(t, err)

	writer, err := pipeline.NewScoreWriter(gormConn)
	assert.Error(t, err)
	assert.Nil(t, writer)
}

func TestScoreWriter_MySQLUsesOnDuplicateKey(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	conn, err := database.NewGormConnection(gormDB, "mysql", "mock_mysql")
	require.NoError(t, err)

	writer, err := pipeline.NewScoreWriter(conn)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`ON DUPLICATE KEY UPDATE score = score \* \? \+ \?`).
		WithArgs(int64(5), "2", "1", "2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txManager := database.NewTxManager(conn)
	tx, err := txManager.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), tx, []*model.ScoreUpdate{
		{UserID: 5, Add: decimal.NewFromInt(2), Multiply: decimal.NewFromInt(1)},
	}))
	require.NoError(t, txManager.Commit(tx))

	assert.NoError(t, mock.ExpectationsWereMet())
}
