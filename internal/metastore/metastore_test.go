package metastore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/internal/metastore"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// Both implementations must satisfy the same contract.
func stores(t *testing.T) map[string]metastore.Store {
	t.Helper()
	bolt, err := metastore.NewBoltStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]metastore.Store{
		"bolt": bolt,
		"mem":  metastore.NewMemStore(),
	}
}

func sample(uuid, file string, seq uint64, status model.Status) *model.SnapshotInfo {
	return &model.SnapshotInfo{
		UUID:         uuid,
		User:         "alice",
		FileName:     file,
		SnapshotName: "snap-" + uuid,
		SeqNum:       seq,
		ChunkSize:    8,
		SegmentSize:  16,
		FileLength:   64,
		CreateTime:   time.Unix(1700000000, 0).UTC(),
		Status:       status,
	}
}

func TestStore_AddGetUpdate(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info := sample("u1", "/a", 5, model.StatusPending)
			require.NoError(t, store.AddSnapshot(info))

			got, err := store.GetSnapshotInfo("u1")
			require.NoError(t, err)
			assert.Equal(t, info, got)

			info.Status = model.StatusDone
			require.NoError(t, store.UpdateSnapshot(info))

			got, err = store.GetSnapshotInfo("u1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusDone, got.Status)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetSnapshotInfo("nope")
			assert.ErrorIs(t, err, metastore.ErrNotFound)
		})
	}
}

func TestStore_GetSnapshotListFiltersByFile(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AddSnapshot(sample("u1", "/a", 5, model.StatusDone)))
			require.NoError(t, store.AddSnapshot(sample("u2", "/a", 10, model.StatusPending)))
			require.NoError(t, store.AddSnapshot(sample("u3", "/b", 3, model.StatusDone)))

			list, err := store.GetSnapshotList("/a")
			require.NoError(t, err)
			assert.Len(t, list, 2)
			for _, info := range list {
				assert.Equal(t, "/a", info.FileName)
			}

			all, err := store.ListAll()
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AddSnapshot(sample("u1", "/a", 5, model.StatusDone)))
			require.NoError(t, store.DeleteSnapshot("u1"))

			_, err := store.GetSnapshotInfo("u1")
			assert.ErrorIs(t, err, metastore.ErrNotFound)

			// Deleting a missing uuid succeeds.
			require.NoError(t, store.DeleteSnapshot("u1"))
			require.NoError(t, store.DeleteSnapshot("never-existed"))
		})
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")

	store, err := metastore.NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AddSnapshot(sample("u1", "/a", 5, model.StatusPending)))
	require.NoError(t, store.Close())

	reopened, err := metastore.NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetSnapshotInfo("u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}
