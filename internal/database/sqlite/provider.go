// Package sqlite registers the SQLite dialector with the database layer.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
)

func init() {
	database.RegisterDialector("sqlite", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("sqlite database path cannot be empty")
		}
		return sqlite.Open(cfg.Database), nil
	})
}

// NewProvider creates a SQLite database provider.
func NewProvider() database.Provider {
	return database.NewBaseProvider("sqlite")
}
