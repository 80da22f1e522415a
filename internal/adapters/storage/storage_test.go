package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/core/internal/infrastructure/config"
	"github.com/taskflow/core/internal/infrastructure/database"
	"github.com/taskflow/core/internal/ports"
)

// testRedisAddr requires Redis running on localhost:6379
const testRedisAddr = "localhost:6379"

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s ports.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "tasks", []byte(`[{"Id":1}]`)))
	got, ok, err := s.Get(ctx, "tasks")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"Id":1}]`, string(got))

	require.NoError(t, s.Set(ctx, "tasks", []byte(`[]`)))
	got, ok, err = s.Get(ctx, "tasks")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(got))

	require.NoError(t, s.Delete(ctx, "tasks"))
	_, ok, err = s.Get(ctx, "tasks")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting an absent key is not an error
	require.NoError(t, s.Delete(ctx, "tasks"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'z'

	got, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	exerciseStore(t, NewFileStore(path))
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.json")

	require.NoError(t, NewFileStore(path).Set(ctx, "taskflow-tasks", []byte(`[1,2,3]`)))

	got, ok, err := NewFileStore(path).Get(ctx, "taskflow-tasks")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[1,2,3]", string(got))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, _, err := NewFileStore(path).Get(context.Background(), "taskflow-tasks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestFileStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, ok, err := NewFileStore(path).Get(context.Background(), "taskflow-tasks")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	s := NewRedisStore(client, "taskflow-test:")
	t.Cleanup(func() {
		client.Del(ctx, "taskflow-test:tasks", "taskflow-test:missing")
		s.Close()
	})

	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("TASKFLOW_TEST_POSTGRES") == "" {
		t.Skip("set TASKFLOW_TEST_POSTGRES=1 and DB_* to run against Postgres")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(database.MigrateUp))

	s := NewPostgresStore(db.DB)
	t.Cleanup(func() {
		s.Delete(context.Background(), "tasks")
	})

	exerciseStore(t, s)
}
