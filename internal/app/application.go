// Package app wires the scorefold service together with uber-fx: config,
// database connections, the execution ledger, the run coordinator, metrics
// and the HTTP trigger server.
package app

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/fx"

	"github.com/scorelab/scorefold/internal/api"
	"github.com/scorelab/scorefold/internal/config"
	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/database/mysql"
	"github.com/scorelab/scorefold/internal/database/postgres"
	"github.com/scorelab/scorefold/internal/database/sqlite"
	"github.com/scorelab/scorefold/internal/metrics"
	"github.com/scorelab/scorefold/internal/pipeline"
	"github.com/scorelab/scorefold/internal/repository"
	repositorysql "github.com/scorelab/scorefold/internal/repository/sql"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// Connections holds the database connections the service runs on. Ledger and
// Store point at the same Connection when their config refs name the same
// entry, which is the deployment default: the checkpoint advance can only
// commit atomically with the chunk's score writes on a shared connection.
type Connections struct {
	Ledger database.Connection
	Store  database.Connection

	all map[string]database.Connection
}

// Close closes every distinct connection.
func (c *Connections) Close() error {
	var lastErr error
	for name, conn := range c.all {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
	}
	return lastErr
}

// NewConnections opens the connections named by the ledger and store refs.
func NewConnections(cfg *config.Config) (*Connections, error) {
	providers := map[string]database.Provider{
		"postgres": postgres.NewProvider(),
		"mysql":    mysql.NewProvider(),
		"sqlite":   sqlite.NewProvider(),
	}

	conns := &Connections{all: make(map[string]database.Connection)}
	open := func(name string) (database.Connection, error) {
		if conn, ok := conns.all[name]; ok {
			return conn, nil
		}
		rawConfig, ok := cfg.Scorefold.Databases[name]
		if !ok {
			return nil, fmt.Errorf("database configuration '%s' not found", name)
		}
		var dbConfig config.DatabaseConfig
		if err := mapstructure.Decode(rawConfig, &dbConfig); err != nil {
			return nil, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
		}
		provider, ok := providers[dbConfig.Type]
		if !ok {
			return nil, fmt.Errorf("no provider for database type '%s' (connection '%s')", dbConfig.Type, name)
		}
		conn, err := provider.Open(name, dbConfig)
		if err != nil {
			return nil, err
		}
		conns.all[name] = conn
		return conn, nil
	}

	ledgerRef := cfg.Scorefold.LedgerDBRef
	storeRef := cfg.Scorefold.StoreDBRef

	var err error
	if conns.Ledger, err = open(ledgerRef); err != nil {
		return nil, err
	}
	if conns.Store, err = open(storeRef); err != nil {
		conns.Close()
		return nil, err
	}

	if ledgerRef != storeRef {
		logger.Warnf("Ledger ('%s') and store ('%s') use different connections; chunk commits and checkpoint advances are no longer atomic.", ledgerRef, storeRef)
	}
	return conns, nil
}

func newLedgerRepository(conns *Connections) *repositorysql.ExecutionRepository {
	// The ledger repository is built on the store connection so that its
	// in-transaction lane updates run on the chunk transaction's handle.
	return repositorysql.NewExecutionRepository(conns.Store)
}

func newTxManager(conns *Connections) database.TxManager {
	return database.NewTxManager(conns.Store)
}

func newCoordinator(cfg *config.Config, conns *Connections, txManager database.TxManager, ledger repository.ExecutionRepository, recorder metrics.MetricRecorder) *pipeline.Coordinator {
	return pipeline.NewCoordinator(cfg.Scorefold.Pipeline, conns.Store, txManager, ledger, recorder)
}

func newServer(cfg *config.Config, coordinator *pipeline.Coordinator, ledger repository.ExecutionRepository, recorder *metrics.PrometheusRecorder) *api.Server {
	return api.NewServer(cfg.Scorefold.Server, coordinator, ledger, recorder.Registry())
}

// registerLifecycle ensures schemas at startup, starts the HTTP server, and
// tears everything down in reverse on shutdown.
func registerLifecycle(lc fx.Lifecycle, conns *Connections, ledger *repositorysql.ExecutionRepository, server *api.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ledger.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := pipeline.EnsureStoreSchema(ctx, conns.Store); err != nil {
				return err
			}
			server.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Stop(ctx); err != nil {
				logger.Errorf("HTTP server shutdown: %v", err)
			}
			return conns.Close()
		},
	})
}

// New builds the fx application for the given configuration.
func New(cfg *config.Config) *fx.App {
	logger.SetLevel(cfg.Scorefold.Logging.Level)

	return fx.New(
		fx.Supply(cfg),
		fx.Provide(
			NewConnections,
			newTxManager,
			newLedgerRepository,
			func(r *repositorysql.ExecutionRepository) repository.ExecutionRepository { return r },
			metrics.NewPrometheusRecorder,
			func(r *metrics.PrometheusRecorder) metrics.MetricRecorder { return r },
			newCoordinator,
			newServer,
		),
		fx.Invoke(registerLifecycle),
	)
}
