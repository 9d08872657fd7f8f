// Package mysql registers the MySQL dialector with the database layer.
package mysql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
)

func init() {
	database.RegisterDialector("mysql", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		)
		return mysql.Open(dsn), nil
	})
}

// NewProvider creates a MySQL database provider.
func NewProvider() database.Provider {
	return database.NewBaseProvider("mysql")
}
