// Package corpus owns the corpus statistics used for keyword scoring.
package corpus

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Repository persists statistics snapshots. LoadStatistics returns nil, nil
// when nothing has been saved yet.
type Repository interface {
	SaveStatistics(ctx context.Context, stats *models.CorpusStatistics) error
	LoadStatistics(ctx context.Context) (*models.CorpusStatistics, error)
}

// Entry is one chunk's contribution to the statistics.
type Entry struct {
	ID     string
	Tokens []string
}

// TermStats is what a query needs from the store: totals plus the document
// frequency of its own terms.
type TermStats struct {
	TotalDocs         int
	AvgChunkLength    float64
	DocumentFrequency map[string]int
}

// Store holds term frequency, document frequency, and chunk count. Writers are
// serialized by writeMu; readers take mu only long enough to copy what they
// need, so a rebuild computing a fresh table never blocks queries.
type Store struct {
	writeMu sync.Mutex

	mu           sync.RWMutex
	tf           map[string]int
	df           map[string]int
	totalDocs    int
	totalTerms   int
	counted      map[string]struct{}
	needsRebuild bool
	dirty        bool

	repo   Repository
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report inconsistencies.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRepository sets where Save and Load persist snapshots.
func WithRepository(r Repository) Option {
	return func(s *Store) { s.repo = r }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tf:      map[string]int{},
		df:      map[string]int{},
		counted: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// AddChunk counts a chunk's tokens. Adding an id that is already counted is an
// inconsistency; it is logged and ignored so counts stay exact.
func (s *Store) AddChunk(id string, tokens []string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counted[id]; ok {
		s.flagLocked("chunk already counted", zap.String("chunk_id", id))
		return
	}
	s.counted[id] = struct{}{}
	for term, n := range utils.TermCounts(tokens) {
		s.tf[term] += n
		s.df[term]++
	}
	s.totalDocs++
	s.totalTerms += len(tokens)
	s.dirty = true
}

// RemoveChunk is the inverse of AddChunk. Counts never go below zero: a
// decrement that would is clamped, logged, and marks the store for rebuild.
func (s *Store) RemoveChunk(id string, tokens []string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counted[id]; !ok {
		s.flagLocked("removing chunk that was never counted", zap.String("chunk_id", id))
		return
	}
	delete(s.counted, id)
	for term, n := range utils.TermCounts(tokens) {
		s.tf[term] = s.decrementLocked("term_frequency", term, s.tf[term], n)
		if s.tf[term] == 0 {
			delete(s.tf, term)
		}
		s.df[term] = s.decrementLocked("document_frequency", term, s.df[term], 1)
		if s.df[term] == 0 {
			delete(s.df, term)
		}
	}
	s.totalDocs = s.decrementLocked("total_docs", "", s.totalDocs, 1)
	s.totalTerms = s.decrementLocked("total_terms", "", s.totalTerms, len(tokens))
	s.dirty = true
}

func (s *Store) decrementLocked(counter, term string, have, by int) int {
	if have-by < 0 {
		s.flagLocked("negative count clamped",
			zap.String("counter", counter), zap.String("term", term),
			zap.Int("have", have), zap.Int("decrement", by))
		return 0
	}
	return have - by
}

func (s *Store) flagLocked(msg string, fields ...zap.Field) {
	s.needsRebuild = true
	s.logger.Warn(fmt.Sprintf("%v: %s", models.ErrStatisticsInconsistency, msg), fields...)
}

// Rebuild replaces the statistics with a recount of entries.
func (s *Store) Rebuild(entries []Entry) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	fresh := compute(entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tf, s.df = fresh.tf, fresh.df
	s.totalDocs, s.totalTerms = fresh.totalDocs, fresh.totalTerms
	s.counted = fresh.counted
	s.needsRebuild = false
	s.dirty = true
}

type table struct {
	tf, df                map[string]int
	totalDocs, totalTerms int
	counted               map[string]struct{}
}

func compute(entries []Entry) *table {
	t := &table{tf: map[string]int{}, df: map[string]int{}, counted: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		if _, dup := t.counted[e.ID]; dup {
			continue
		}
		t.counted[e.ID] = struct{}{}
		for term, n := range utils.TermCounts(e.Tokens) {
			t.tf[term] += n
			t.df[term]++
		}
		t.totalDocs++
		t.totalTerms += len(e.Tokens)
	}
	return t
}

// Verify recounts entries and compares the result with the live statistics.
// A mismatch returns ErrStatisticsInconsistency and marks the store for rebuild.
func (s *Store) Verify(entries []Entry) error {
	fresh := compute(entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	var problem string
	switch {
	case fresh.totalDocs != s.totalDocs:
		problem = fmt.Sprintf("total docs %d, recount %d", s.totalDocs, fresh.totalDocs)
	case fresh.totalTerms != s.totalTerms:
		problem = fmt.Sprintf("total terms %d, recount %d", s.totalTerms, fresh.totalTerms)
	case !maps.Equal(fresh.df, s.df):
		problem = "document frequencies differ from recount"
	case !maps.Equal(fresh.tf, s.tf):
		problem = "term frequencies differ from recount"
	}
	if problem == "" {
		return nil
	}
	s.needsRebuild = true
	return fmt.Errorf("%w: %s", models.ErrStatisticsInconsistency, problem)
}

// Get returns a deep copy of the statistics.
func (s *Store) Get() *models.CorpusStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &models.CorpusStatistics{
		TermFrequency:     maps.Clone(s.tf),
		DocumentFrequency: maps.Clone(s.df),
		TotalDocs:         s.totalDocs,
		TotalTerms:        s.totalTerms,
	}
}

// Lookup copies the totals and the document frequency of terms.
func (s *Store) Lookup(terms []string) TermStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts := TermStats{TotalDocs: s.totalDocs, DocumentFrequency: make(map[string]int, len(terms))}
	if s.totalDocs > 0 {
		ts.AvgChunkLength = float64(s.totalTerms) / float64(s.totalDocs)
	}
	for _, t := range terms {
		if n, ok := s.df[t]; ok {
			ts.DocumentFrequency[t] = n
		}
	}
	return ts
}

// TotalDocs returns the number of counted chunks.
func (s *Store) TotalDocs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalDocs
}

// VocabularySize returns the number of distinct terms.
func (s *Store) VocabularySize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.df)
}

// NeedsRebuild reports whether an inconsistency was seen since the last rebuild.
func (s *Store) NeedsRebuild() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needsRebuild
}

// Dirty reports whether there are changes not yet saved.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Save persists a snapshot through the repository.
func (s *Store) Save(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.Get()
	snap.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveStatistics(ctx, snap); err != nil {
		return fmt.Errorf("save corpus statistics: %w", err)
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Load restores the last saved snapshot. chunkIDs are the ids of the stored
// chunks the snapshot should account for; when their number disagrees with the
// snapshot the store is marked for rebuild. Load reports false when there was
// nothing to restore.
func (s *Store) Load(ctx context.Context, chunkIDs []string) (bool, error) {
	if s.repo == nil {
		return false, nil
	}
	snap, err := s.repo.LoadStatistics(ctx)
	if err != nil {
		return false, fmt.Errorf("load corpus statistics: %w", err)
	}
	if snap == nil {
		return false, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tf = orEmpty(snap.TermFrequency)
	s.df = orEmpty(snap.DocumentFrequency)
	s.totalDocs, s.totalTerms = snap.TotalDocs, snap.TotalTerms
	s.counted = make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		s.counted[id] = struct{}{}
	}
	s.dirty = false
	if snap.TotalDocs != len(s.counted) {
		s.flagLocked("persisted chunk count differs from stored chunks",
			zap.Int("persisted", snap.TotalDocs), zap.Int("stored", len(s.counted)))
	}
	for term, n := range s.df {
		if n > s.totalDocs {
			s.flagLocked("document frequency exceeds total docs", zap.String("term", term))
			break
		}
	}
	return true, nil
}

func orEmpty(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
