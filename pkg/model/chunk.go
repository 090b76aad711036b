package model

import "sort"

// ChunkDataName addresses one chunk blob in the object store. SeqNum is the
// sequence at which the chunk content was last written, which may be older
// than the snapshot that references it.
type ChunkDataName struct {
	FileName   string `json:"file_name"`
	SeqNum     uint64 `json:"seq_num"`
	ChunkIndex uint64 `json:"chunk_index"`
}

// ChunkIndexDataName addresses the chunk index of one snapshot.
type ChunkIndexDataName struct {
	FileName string `json:"file_name"`
	SeqNum   uint64 `json:"seq_num"`
}

// ChunkIndexData maps each allocated chunk index of a snapshot to the blob
// holding its content.
type ChunkIndexData struct {
	FileName string                   `json:"file_name"`
	Index    map[uint64]ChunkDataName `json:"index"`
}

// NewChunkIndexData returns an empty index for the given volume.
func NewChunkIndexData(fileName string) *ChunkIndexData {
	return &ChunkIndexData{
		FileName: fileName,
		Index:    make(map[uint64]ChunkDataName),
	}
}

// Put records the blob name for one chunk index.
func (d *ChunkIndexData) Put(name ChunkDataName) {
	if d.Index == nil {
		d.Index = make(map[uint64]ChunkDataName)
	}
	d.Index[name.ChunkIndex] = name
}

// Get returns the blob name for a chunk index.
func (d *ChunkIndexData) Get(chunkIndex uint64) (ChunkDataName, bool) {
	name, ok := d.Index[chunkIndex]
	return name, ok
}

// AllChunkIndexes returns the recorded chunk indexes in ascending order.
func (d *ChunkIndexData) AllChunkIndexes() []uint64 {
	indexes := make([]uint64, 0, len(d.Index))
	for idx := range d.Index {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes
}

// Len returns the number of recorded chunks.
func (d *ChunkIndexData) Len() int {
	return len(d.Index)
}

// FileSnapMap is the union of the chunk indexes of the peer snapshots of one
// volume. A chunk referenced by any peer must not be deleted.
type FileSnapMap struct {
	Maps []*ChunkIndexData
}

// Add appends one peer index to the map.
func (m *FileSnapMap) Add(data *ChunkIndexData) {
	m.Maps = append(m.Maps, data)
}

// IsExistChunk reports whether any peer snapshot references the given blob.
func (m *FileSnapMap) IsExistChunk(name ChunkDataName) bool {
	for _, data := range m.Maps {
		if got, ok := data.Get(name.ChunkIndex); ok && got == name {
			return true
		}
	}
	return false
}
