package database

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Tx represents an open database transaction. The gorm handle it exposes is
// the transaction itself; chunk writes and checkpoint advances issued
// through it commit or roll back as one unit.
type Tx interface {
	DB() *gorm.DB
}

// TxManager manages the lifecycle of transactions on one connection.
// The chunk execution engine opens one transaction per chunk and releases it
// right after commit or rollback; there are no cross-chunk transactions.
type TxManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

type gormTx struct {
	db *gorm.DB
}

// DB implements Tx.
func (t *gormTx) DB() *gorm.DB { return t.db }

// GormTxManager implements TxManager over a gorm connection.
type GormTxManager struct {
	conn Connection
}

// NewTxManager creates a TxManager for the given connection.
func NewTxManager(conn Connection) *GormTxManager {
	return &GormTxManager{conn: conn}
}

// Begin implements TxManager.
func (m *GormTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	db := m.conn.DB().WithContext(ctx)

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	tx := db.Begin(txOpts)
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction on '%s': %w", m.conn.Name(), tx.Error)
	}
	return &gormTx{db: tx}, nil
}

// Commit implements TxManager.
func (m *GormTxManager) Commit(tx Tx) error {
	gt, ok := tx.(*gormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *gormTx")
	}
	return gt.db.Commit().Error
}

// Rollback implements TxManager.
func (m *GormTxManager) Rollback(tx Tx) error {
	gt, ok := tx.(*gormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *gormTx")
	}
	return gt.db.Rollback().Error
}

var _ TxManager = (*GormTxManager)(nil)
