package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/pkg/model"
)

func TestChunkIndexData_PutGet(t *testing.T) {
	data := model.NewChunkIndexData("/a")

	name := model.ChunkDataName{FileName: "/a", SeqNum: 3, ChunkIndex: 7}
	data.Put(name)

	got, ok := data.Get(7)
	require.True(t, ok)
	assert.Equal(t, name, got)

	_, ok = data.Get(8)
	assert.False(t, ok)
}

func TestChunkIndexData_AllChunkIndexesSorted(t *testing.T) {
	data := model.NewChunkIndexData("/a")
	for _, idx := range []uint64{9, 2, 5, 0} {
		data.Put(model.ChunkDataName{FileName: "/a", SeqNum: 1, ChunkIndex: idx})
	}

	assert.Equal(t, []uint64{0, 2, 5, 9}, data.AllChunkIndexes())
	assert.Equal(t, 4, data.Len())
}

func TestChunkIndexData_JSONRoundTrip(t *testing.T) {
	data := model.NewChunkIndexData("/a")
	data.Put(model.ChunkDataName{FileName: "/a", SeqNum: 3, ChunkIndex: 7})

	encoded, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded model.ChunkIndexData
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "/a", decoded.FileName)
	got, ok := decoded.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint64(3), got.SeqNum)
}

func TestFileSnapMap_IsExistChunk(t *testing.T) {
	peer := model.NewChunkIndexData("/a")
	peer.Put(model.ChunkDataName{FileName: "/a", SeqNum: 3, ChunkIndex: 7})

	snapMap := &model.FileSnapMap{}
	snapMap.Add(peer)

	// Same chunk, same write sequence: shared.
	assert.True(t, snapMap.IsExistChunk(
		model.ChunkDataName{FileName: "/a", SeqNum: 3, ChunkIndex: 7}))

	// Same index, different sequence: a different blob.
	assert.False(t, snapMap.IsExistChunk(
		model.ChunkDataName{FileName: "/a", SeqNum: 5, ChunkIndex: 7}))

	// Unknown index.
	assert.False(t, snapMap.IsExistChunk(
		model.ChunkDataName{FileName: "/a", SeqNum: 3, ChunkIndex: 8}))
}

func TestNewSnapshotInfo(t *testing.T) {
	info := model.NewSnapshotInfo("uuid-1", "alice", "/a", "snap1")
	assert.Equal(t, model.StatusPending, info.Status)
	assert.Equal(t, model.UnInitializedSeqNum, info.SeqNum)
	assert.Equal(t, "alice", info.User)
	assert.Equal(t, "/a", info.FileName)
}
