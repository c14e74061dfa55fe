package database

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestKVStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetValue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.PutValue(ctx, "failedRecordings", []byte(`[1]`)))
	got, err := db.GetValue(ctx, "failedRecordings")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1]`), got)

	require.NoError(t, db.PutValue(ctx, "failedRecordings", []byte(`[1,2]`)))
	got, err = db.GetValue(ctx, "failedRecordings")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)

	ts, err := db.UpdatedAt(ctx, "failedRecordings")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	require.NoError(t, db.DeleteValue(ctx, "failedRecordings"))
	_, err = db.GetValue(ctx, "failedRecordings")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kv.db")
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	require.NoError(t, db.PutValue(ctx, "k", []byte("v")))
	require.NoError(t, db.Close())

	db, err = NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestConcurrentPut(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, db.PutValue(ctx, "shared", []byte("x")))
		}()
	}
	wg.Wait()

	got, err := db.GetValue(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestUpdateValueSerializesHandles(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	logger := zerolog.Nop()
	ctx := context.Background()

	// two handles on one file behave like two processes
	first, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer second.Close()

	increment := func(current []byte) ([]byte, error) {
		n := 0
		if current != nil {
			n, _ = strconv.Atoi(string(current))
		}
		return []byte(strconv.Itoa(n + 1)), nil
	}

	const perHandle = 10
	var wg sync.WaitGroup
	for _, db := range []*DB{first, second} {
		wg.Add(perHandle)
		for i := 0; i < perHandle; i++ {
			go func(db *DB) {
				defer wg.Done()
				assert.NoError(t, db.UpdateValue(ctx, "counter", increment))
			}(db)
		}
	}
	wg.Wait()

	got, err := first.GetValue(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(2*perHandle), string(got))
}

func TestUpdateValueRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.PutValue(ctx, "k", []byte("v1")))

	boom := errors.New("boom")
	err := db.UpdateValue(ctx, "k", func([]byte) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	got, err := db.GetValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()
	_, err = db.GetValue(ctx, "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Error(t, db.PutValue(ctx, "k", nil))
}
