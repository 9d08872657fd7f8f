// Package database provides the gorm-backed connection layer shared by the
// event source, the score store and the execution ledger. Concrete dialects
// register themselves through RegisterDialector from their subpackages.
package database

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// Connection is a named database connection.
type Connection interface {
	Name() string
	Type() string
	DB() *gorm.DB
	SQLDB() (*sql.DB, error)
	Close() error
}

// Provider opens connections of one database type.
type Provider interface {
	Type() string
	Open(name string, cfg config.DatabaseConfig) (Connection, error)
}

// DialectorFactory builds a gorm.Dialector from connection settings.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMu       sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for a database type.
// Called from the init functions of the dialect subpackages.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMu.Lock()
	defer dialectorMu.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

func dialectorFor(dbType string) (DialectorFactory, error) {
	dialectorMu.RLock()
	defer dialectorMu.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// GormConnection implements Connection over a *gorm.DB.
type GormConnection struct {
	name   string
	dbType string
	db     *gorm.DB
	sqlDB  *sql.DB
}

// Name returns the connection's configured name.
func (c *GormConnection) Name() string { return c.name }

// Type returns the database type.
func (c *GormConnection) Type() string { return c.dbType }

// DB returns the underlying gorm handle.
func (c *GormConnection) DB() *gorm.DB { return c.db }

// SQLDB returns the underlying *sql.DB.
func (c *GormConnection) SQLDB() (*sql.DB, error) {
	if c.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return c.sqlDB, nil
}

// Close closes the connection pool.
func (c *GormConnection) Close() error {
	if c.sqlDB == nil {
		return nil
	}
	logger.Infof("Closing database connection '%s'", c.name)
	return c.sqlDB.Close()
}

// NewGormConnection wraps an already-open gorm handle. Used by providers and
// by tests that open their own in-memory databases.
func NewGormConnection(db *gorm.DB, dbType, name string) (*GormConnection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB for '%s': %w", name, err)
	}
	return &GormConnection{name: name, dbType: dbType, db: db, sqlDB: sqlDB}, nil
}

// BaseProvider implements Provider for any registered dialect.
type BaseProvider struct {
	dbType string
}

// NewBaseProvider creates a provider for the given database type.
func NewBaseProvider(dbType string) *BaseProvider {
	return &BaseProvider{dbType: dbType}
}

// Type implements Provider.
func (p *BaseProvider) Type() string { return p.dbType }

// Open implements Provider: builds the dialector, opens gorm with the shared
// log adapter, and applies pool settings.
func (p *BaseProvider) Open(name string, cfg config.DatabaseConfig) (Connection, error) {
	factory, err := dialectorFor(p.dbType)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build dialector for '%s': %w", name, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err)
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	logger.Infof("Opened database connection '%s' (type=%s)", name, p.dbType)
	return &GormConnection{name: name, dbType: p.dbType, db: db, sqlDB: sqlDB}, nil
}

// newGormLogger routes gorm's own logging through the service logger.
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type gormWriter struct{}

// Printf implements gormlogger.Writer.
func (gormWriter) Printf(format string, v ...interface{}) {
	logger.Debugf("[GORM] %s", strings.TrimSpace(fmt.Sprintf(format, v...)))
}
