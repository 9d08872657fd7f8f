// Package postgres registers the PostgreSQL dialector with the database layer.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
)

func init() {
	database.RegisterDialector("postgres", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		sslmode := cfg.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslmode,
		)
		return postgres.Open(dsn), nil
	})
}

// NewProvider creates a PostgreSQL database provider.
func NewProvider() database.Provider {
	return database.NewBaseProvider("postgres")
}
