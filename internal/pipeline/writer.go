package pipeline

import (
	"context"
	"fmt"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/support/exception"
)

// ItemWriter applies a chunk of score updates inside the caller's
// transaction. A failed write leaves the transaction poisoned; the engine
// rolls it back and either retries the whole chunk or fails the lane.
type ItemWriter interface {
	Write(ctx context.Context, tx database.Tx, updates []*model.ScoreUpdate) error
}

// Upsert statements per dialect. Each folds one update into the stored
// score: a missing row starts at 0, so the inserted value is just Add, and
// an existing row becomes score*Multiply + Add. The multiply and add values
// differ per row, which is why updates are applied one statement at a time
// instead of through a batched insert.
const (
	upsertOnConflict = `INSERT INTO user_score (user_id, score) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET score = user_score.score * ? + ?`

	upsertOnDuplicateKey = `INSERT INTO user_score (user_id, score) VALUES (?, ?)
ON DUPLICATE KEY UPDATE score = score * ? + ?`
)

// ScoreWriter writes score updates with a dialect-aware idempotent upsert.
type ScoreWriter struct {
	statement string
}

// NewScoreWriter creates a writer for the given connection's dialect.
// Postgres and SQLite share the ON CONFLICT form; MySQL uses ON DUPLICATE
// KEY UPDATE.
func NewScoreWriter(conn database.Connection) (*ScoreWriter, error) {
	switch conn.Type() {
	case "postgres", "sqlite":
		return &ScoreWriter{statement: upsertOnConflict}, nil
	case "mysql":
		return &ScoreWriter{statement: upsertOnDuplicateKey}, nil
	default:
		return nil, fmt.Errorf("no upsert statement for database type: %s", conn.Type())
	}
}

var _ ItemWriter = (*ScoreWriter)(nil)

// Write implements ItemWriter. Updates are applied in slice order on the
// transaction, so a chunk's per-user subsequence lands in event order.
// Execution errors are classified retryable: the statement itself is fixed,
// so a failure here is an infrastructure fault.
func (w *ScoreWriter) Write(ctx context.Context, tx database.Tx, updates []*model.ScoreUpdate) error {
	const op = "ScoreWriter.Write"

	db := tx.DB().WithContext(ctx)
	for _, u := range updates {
		// Initial insert value is 0*Multiply + Add.
		insertScore := u.Add
		err := db.Exec(w.statement, u.UserID, insertScore, u.Multiply, u.Add).Error
		if err != nil {
			return exception.NewBatchError(op,
				fmt.Sprintf("failed to upsert score for user %d", u.UserID), err, true)
		}
	}
	return nil
}
