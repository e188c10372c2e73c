package vector

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// DefaultShardCapacity is the number of vectors per shard when none is configured.
const DefaultShardCapacity = 4096

type entry struct {
	chunk  *models.Chunk
	vector []float32
	norm   float64
	seq    uint64
}

type shard struct {
	mu      sync.RWMutex
	entries []*entry
}

type location struct {
	shard  int
	offset int
}

// ShardedIndex is a brute-force cosine index split into fixed-capacity shards.
// A directory maps chunk id to (shard, offset); removal swaps the shard's last
// entry into the hole so only that shard and one directory slot change.
type ShardedIndex struct {
	dimensions int
	capacity   int

	mu        sync.RWMutex // guards directory and the shards slice
	directory map[string]location
	shards    []*shard

	seq atomic.Uint64
}

// NewShardedIndex creates an empty index for vectors of the given dimension.
func NewShardedIndex(dimensions, shardCapacity int) (*ShardedIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if shardCapacity <= 0 {
		shardCapacity = DefaultShardCapacity
	}
	return &ShardedIndex{
		dimensions: dimensions,
		capacity:   shardCapacity,
		directory:  make(map[string]location),
	}, nil
}

// Add stores chunk and its embedding. An existing entry with the same id is
// replaced and loses its insertion-order position.
func (ix *ShardedIndex) Add(_ context.Context, chunk *models.Chunk) error {
	if len(chunk.Embedding) != ix.dimensions {
		return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
			models.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), ix.dimensions)
	}
	vec := slices.Clone(chunk.Embedding)
	stored := *chunk
	stored.Embedding = vec
	e := &entry{chunk: &stored, vector: vec, norm: utils.L2Norm(vec), seq: ix.seq.Add(1)}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.directory[chunk.ID]; ok {
		ix.removeLocked(chunk.ID)
	}
	si := ix.shardWithRoomLocked()
	s := ix.shards[si]
	s.mu.Lock()
	s.entries = append(s.entries, e)
	offset := len(s.entries) - 1
	s.mu.Unlock()
	ix.directory[chunk.ID] = location{shard: si, offset: offset}
	return nil
}

func (ix *ShardedIndex) shardWithRoomLocked() int {
	for i, s := range ix.shards {
		s.mu.RLock()
		n := len(s.entries)
		s.mu.RUnlock()
		if n < ix.capacity {
			return i
		}
	}
	ix.shards = append(ix.shards, &shard{entries: make([]*entry, 0, ix.capacity)})
	return len(ix.shards) - 1
}

// Remove deletes id from the index. Removing an unknown id is a no-op.
func (ix *ShardedIndex) Remove(_ context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
	return nil
}

func (ix *ShardedIndex) removeLocked(id string) {
	loc, ok := ix.directory[id]
	if !ok {
		return
	}
	s := ix.shards[loc.shard]
	s.mu.Lock()
	last := len(s.entries) - 1
	if loc.offset != last {
		moved := s.entries[last]
		s.entries[loc.offset] = moved
		ix.directory[moved.chunk.ID] = location{shard: loc.shard, offset: loc.offset}
	}
	s.entries[last] = nil
	s.entries = s.entries[:last]
	s.mu.Unlock()
	delete(ix.directory, id)
}

// Search returns the k most similar chunks, best first. Equal scores keep
// insertion order. Shards are scanned concurrently and their partial top-k
// heaps merged.
func (ix *ShardedIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrDimensionMismatch, len(query), ix.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	ix.mu.RLock()
	shards := slices.Clone(ix.shards)
	ix.mu.RUnlock()
	if len(shards) == 0 {
		return nil, nil
	}

	qNorm := utils.L2Norm(query)
	partials := make([][]hit, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range shards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[i] = s.search(query, qNorm, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &topK{k: k}
	for _, p := range partials {
		for _, h := range p {
			merged.offer(h)
		}
	}
	hits := merged.hits
	slices.SortFunc(hits, func(a, b hit) int {
		switch {
		case worse(b, a):
			return -1
		case worse(a, b):
			return 1
		default:
			return 0
		}
	})
	results := make([]*VectorResult, len(hits))
	for i, h := range hits {
		results[i] = &VectorResult{ID: h.entry.chunk.ID, Score: h.score, Chunk: h.entry.chunk}
	}
	return results, nil
}

func (s *shard) search(query []float32, qNorm float64, k int) []hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := &topK{k: k, hits: make([]hit, 0, min(k, len(s.entries)))}
	for _, e := range s.entries {
		h.offer(hit{entry: e, score: Cosine(query, qNorm, e.vector, e.norm)})
	}
	return h.hits
}

// Get returns the stored chunk for id.
func (ix *ShardedIndex) Get(id string) (*models.Chunk, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	loc, ok := ix.directory[id]
	if !ok {
		return nil, false
	}
	s := ix.shards[loc.shard]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[loc.offset].chunk, true
}

// Size returns the number of stored vectors.
func (ix *ShardedIndex) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.directory)
}

// Dimensions returns the configured vector dimension.
func (ix *ShardedIndex) Dimensions() int {
	return ix.dimensions
}

// ShardSizes returns the number of vectors held by each shard.
func (ix *ShardedIndex) ShardSizes() []int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	sizes := make([]int, len(ix.shards))
	for i, s := range ix.shards {
		s.mu.RLock()
		sizes[i] = len(s.entries)
		s.mu.RUnlock()
	}
	return sizes
}

// Close releases all vectors.
func (ix *ShardedIndex) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.directory = make(map[string]location)
	ix.shards = nil
	return nil
}
