package pipeline

import (
	"context"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/support/exception"
)

// EnsureStoreSchema creates the event source and score store tables if they
// do not exist. Schema migration proper is out of scope; this covers local
// and test databases, matching the ledger repository's EnsureSchema.
func EnsureStoreSchema(ctx context.Context, conn database.Connection) error {
	const op = "EnsureStoreSchema"

	err := conn.DB().WithContext(ctx).AutoMigrate(
		&model.SessionAction{},
		&model.UserScore{},
	)
	if err != nil {
		return exception.NewBatchError(op, "failed to migrate store tables", err, false)
	}
	return nil
}
