package timeline

import (
	"fmt"
	"sync/atomic"

	"pawgram/business/recommend"
)

// Snapshot is one immutable serving model: the checkpoint it came from,
// the ranker built on it, and the user universe it was trained with.
// Snapshots are never mutated after construction; Holder swaps whole
// snapshots atomically.
type Snapshot struct {
	Ranker   *recommend.Ranker
	NumUsers int
	Source   string
}

// NewSnapshotFromFile loads a checkpoint file into a fresh snapshot.
func NewSnapshotFromFile(path string) (*Snapshot, error) {
	ckpt, err := recommend.LoadCheckpointFile(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	model, err := recommend.LoadFromCheckpoint(ckpt)
	if err != nil {
		return nil, fmt.Errorf("build model from %s: %w", path, err)
	}

	return &Snapshot{
		Ranker:   recommend.NewRanker(model),
		NumUsers: ckpt.Config.NumUsers,
		Source:   path,
	}, nil
}

// Holder publishes the current snapshot to concurrent readers. Readers
// take a reference once per request; a swap never disturbs requests
// already holding the previous snapshot.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	if initial != nil {
		h.current.Store(initial)
	}
	return h
}

// Load returns the current snapshot, or nil before the first Swap.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap publishes a new snapshot.
func (h *Holder) Swap(s *Snapshot) {
	h.current.Store(s)
}
