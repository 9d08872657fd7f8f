// Package pipeline implements the ordered chunked aggregation: the paged
// event reader, the score-update translator, the user-id partitioner, the
// idempotent upsert writer, and the chunk engine that drives them with one
// transaction per chunk and a checkpoint inside it.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/support/exception"
	"github.com/scorelab/scorefold/internal/support/logger"
)

// ItemReader yields session action events one at a time in ascending id
// order. Read returns io.EOF once the stream behind the reader is drained.
type ItemReader interface {
	// Open positions the reader strictly after the given event id.
	Open(ctx context.Context, afterID int64) error
	Read(ctx context.Context) (*model.SessionAction, error)
	Close(ctx context.Context) error
}

// ActionReader reads session actions from the event source with keyset
// pagination: each page is fetched with id > cursor ORDER BY id, so pages
// stay stable while earlier rows are being aggregated and the cursor doubles
// as the restart position. A partition-aware reader additionally filters to
// user_id mod PartitionCount == PartitionIndex.
type ActionReader struct {
	conn     database.Connection
	pageSize int

	// PartitionCount <= 1 means the reader sees the whole stream.
	partitionCount int
	partitionIndex int

	cursor int64
	buffer []model.SessionAction
	pos    int
	eof    bool
	opened bool
}

// NewActionReader creates a reader over the whole event stream.
func NewActionReader(conn database.Connection, pageSize int) *ActionReader {
	return NewPartitionReader(conn, pageSize, 1, 0)
}

// NewPartitionReader creates a reader over one user-id partition of the
// event stream.
func NewPartitionReader(conn database.Connection, pageSize, partitionCount, partitionIndex int) *ActionReader {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &ActionReader{
		conn:           conn,
		pageSize:       pageSize,
		partitionCount: partitionCount,
		partitionIndex: partitionIndex,
	}
}

var _ ItemReader = (*ActionReader)(nil)

// Open implements ItemReader.
func (r *ActionReader) Open(ctx context.Context, afterID int64) error {
	r.cursor = afterID
	r.buffer = nil
	r.pos = 0
	r.eof = false
	r.opened = true
	logger.Debugf("ActionReader opened (partition %d/%d, after id %d).", r.partitionIndex, r.partitionCount, afterID)
	return nil
}

// Read implements ItemReader. Events are returned in ascending id order;
// io.EOF marks the end of the currently visible stream.
func (r *ActionReader) Read(ctx context.Context) (*model.SessionAction, error) {
	const op = "ActionReader.Read"

	if !r.opened {
		return nil, exception.NewBatchError(op, "reader is not open", nil, false)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.pos >= len(r.buffer) {
		if r.eof {
			return nil, io.EOF
		}
		if err := r.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(r.buffer) == 0 {
			return nil, io.EOF
		}
	}

	action := r.buffer[r.pos]
	r.pos++
	r.cursor = action.ID
	return &action, nil
}

func (r *ActionReader) fetchPage(ctx context.Context) error {
	const op = "ActionReader.fetchPage"

	query := r.conn.DB().WithContext(ctx).
		Where("id > ?", r.cursor).
		Order("id ASC").
		Limit(r.pageSize)
	if r.partitionCount > 1 {
		// SQL % follows the dividend's sign, so normalize it the same way
		// Route does or rows with negative user ids match no lane.
		p := int64(r.partitionCount)
		query = query.Where("((user_id % ?) + ?) % ? = ?", p, p, p, int64(r.partitionIndex))
	}

	var page []model.SessionAction
	if err := query.Find(&page).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to fetch page after id %d", r.cursor), err, true)
	}

	r.buffer = page
	r.pos = 0
	if len(page) < r.pageSize {
		r.eof = true
	}
	return nil
}

// Close implements ItemReader.
func (r *ActionReader) Close(ctx context.Context) error {
	r.buffer = nil
	r.opened = false
	return nil
}

// SynchronizedReader serializes access to a shared ItemReader. A reader
// shared across lanes hands each event to exactly one caller; note that this
// preserves read order but not per-user apply order across lanes, which is
// why the engine pairs lanes with partition readers instead.
type SynchronizedReader struct {
	mu    sync.Mutex
	inner ItemReader
}

// NewSynchronizedReader wraps reader with a mutex.
func NewSynchronizedReader(reader ItemReader) *SynchronizedReader {
	return &SynchronizedReader{inner: reader}
}

var _ ItemReader = (*SynchronizedReader)(nil)

// Open implements ItemReader.
func (r *SynchronizedReader) Open(ctx context.Context, afterID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner.Open(ctx, afterID)
}

// Read implements ItemReader.
func (r *SynchronizedReader) Read(ctx context.Context) (*model.SessionAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner.Read(ctx)
}

// Close implements ItemReader.
func (r *SynchronizedReader) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner.Close(ctx)
}
