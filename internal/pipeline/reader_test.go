package pipeline_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorelab/scorefold/internal/database"
	"github.com/scorelab/scorefold/internal/model"
	"github.com/scorelab/scorefold/internal/pipeline"
)

func seedSequence(t *testing.T, conn database.Connection, count int64) {
	t.Helper()
	for id := int64(1); id <= count; id++ {
		a := action(id, id%4, model.ActionPlus, "1")
		seedActions(t, conn, a)
	}
}

func readAll(t *testing.T, reader pipeline.ItemReader) []int64 {
	t.Helper()
	var ids []int64
	for {
		a, err := reader.Read(context.Background())
		if err == io.EOF {
			return ids
		}
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
}

func TestActionReader_ReadsInIDOrderAcrossPages(t *testing.T) {
	conn := newStoreConn(t)
	seedSequence(t, conn, 7)

	// Page size 3 forces three fetches, the last one short.
	reader := pipeline.NewActionReader(conn, 3)
	require.NoError(t, reader.Open(context.Background(), 0))
	defer reader.Close(context.Background())

	ids := readAll(t, reader)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, ids)
}

func TestActionReader_OpensStrictlyAfterCheckpoint(t *testing.T) {
	conn := newStoreConn(t)
	seedSequence(t, conn, 5)

	reader := pipeline.NewActionReader(conn, 2)
	require.NoError(t, reader.Open(context.Background(), 3))
	defer reader.Close(context.Background())

	ids := readAll(t, reader)
	assert.Equal(t, []int64{4, 5}, ids)
}

func TestActionReader_EmptyStreamIsEOF(t *testing.T) {
	conn := newStoreConn(t)

	reader := pipeline.NewActionReader(conn, 5)
	require.NoError(t, reader.Open(context.Background(), 0))
	defer reader.Close(context.Background())

	_, err := reader.Read(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestPartitionReader_FiltersByUserIDModulo(t *testing.T) {
	conn := newStoreConn(t)
	seedSequence(t, conn, 12)

	for partition := 0; partition < 3; partition++ {
		reader := pipeline.NewPartitionReader(conn, 4, 3, partition)
		require.NoError(t, reader.Open(context.Background(), 0))

		var prev int64
		for {
			a, err := reader.Read(context.Background())
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			assert.Equal(t, partition, pipeline.Route(a.UserID, 3))
			assert.Greater(t, a.ID, prev, "ids must ascend within a partition")
			prev = a.ID
		}
		require.NoError(t, reader.Close(context.Background()))
	}
}

func TestPartitionReader_NegativeUserIDsMatchTheirLane(t *testing.T) {
	conn := newStoreConn(t)
	seedActions(t, conn,
		action(1, -1, model.ActionPlus, "5"),
		action(2, 1, model.ActionPlus, "7"),
		action(3, -4, model.ActionPlus, "2"),
		action(4, -3, model.ActionMulti, "2"),
	)

	// Every event must be visible to exactly the lane Route assigns it to;
	// a sign-following SQL modulo would leave negative user ids unmatched.
	seen := map[int64]int{}
	for partition := 0; partition < 3; partition++ {
		reader := pipeline.NewPartitionReader(conn, 4, 3, partition)
		require.NoError(t, reader.Open(context.Background(), 0))
		for {
			a, err := reader.Read(context.Background())
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			assert.Equal(t, partition, pipeline.Route(a.UserID, 3))
			seen[a.ID]++
		}
		require.NoError(t, reader.Close(context.Background()))
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1, 4: 1}, seen)
}

func TestSynchronizedReader_SharedReadsAreExactlyOnce(t *testing.T) {
	conn := newStoreConn(t)
	seedSequence(t, conn, 40)

	shared := pipeline.NewSynchronizedReader(pipeline.NewActionReader(conn, 7))
	require.NoError(t, shared.Open(context.Background(), 0))
	defer shared.Close(context.Background())

	var mu sync.Mutex
	seen := map[int64]int{}
	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				a, err := shared.Read(context.Background())
				if err == io.EOF {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[a.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 40)
	for id, count := range seen {
		assert.Equal(t, 1, count, "event %d handed out more than once", id)
	}
}

func TestActionReader_ReadBeforeOpenFails(t *testing.T) {
	conn := newStoreConn(t)

	reader := pipeline.NewActionReader(conn, 5)
	_, err := reader.Read(context.Background())
	assert.Error(t, err)
}
