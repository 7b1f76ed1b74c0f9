// Package memstore implements C5, the MemoryStore facade: the single
// public entry point that coordinates SparqlExecutor, VectorIndex,
// ConceptGraph, MemoryCache, RetrievalEngine and SearchFilters behind the
// store/retrieve/loadHistory/save/classifyAndDecay operations.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danja/semem-sub009/internal/conceptgraph"
	"github.com/danja/semem-sub009/internal/config"
	"github.com/danja/semem-sub009/internal/llm"
	"github.com/danja/semem-sub009/internal/memcache"
	"github.com/danja/semem-sub009/internal/retrieval"
	"github.com/danja/semem-sub009/internal/searchfilter"
	"github.com/danja/semem-sub009/internal/sparql"
	"github.com/danja/semem-sub009/internal/vectorindex"
	"github.com/danja/semem-sub009/pkg/types"
)

// demotionAccessCountCeiling is the spec.md §4.5 constant below which a
// decayed interaction demotes to long-term. Unlike the decay threshold and
// the pin threshold, this one isn't exposed as a config field.
const demotionAccessCountCeiling = 3

// defaultRetrieveLimit matches SearchFilters' own default MaxResults, so a
// caller that doesn't specify limit still gets a sensible candidate pool.
const defaultRetrieveLimit = 50

// MemoryStore is created once per configured endpoint/graph and disposed
// once. It is safe for concurrent use: store/saveMemoryToHistory/
// classifyAndDecay hold the writer lock exclusively; retrieve holds only
// the reader lock and may run alongside any number of other retrieves.
type MemoryStore struct {
	cfg *config.StoreConfig

	executor *sparql.Executor
	engine   *retrieval.Engine

	embedder  llm.EmbeddingProducer
	extractor llm.ConceptExtractor

	mu    sync.RWMutex
	cache *memcache.Cache
	index *vectorindex.Index
	graph *conceptgraph.Graph

	lastDecayAtMillis int64
}

// New builds a MemoryStore against cfg. embedder/extractor may be nil; if
// nil, store() requires the caller to supply a pre-computed embedding (and
// simply leaves concepts empty when none are supplied).
func New(cfg *config.StoreConfig, embedder llm.EmbeddingProducer, extractor llm.ConceptExtractor) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	executor := sparql.NewExecutor(sparql.Config{
		QueryURL:  cfg.Endpoint.QueryURL,
		UpdateURL: cfg.Endpoint.UpdateURL,
		User:      cfg.Endpoint.User,
		Password:  cfg.Endpoint.Password,
		GraphName: cfg.GraphName,
		Timeout:   cfg.Timeout(),
	})

	return &MemoryStore{
		cfg:       cfg,
		executor:  executor,
		engine:    retrieval.New(),
		embedder:  embedder,
		extractor: extractor,
		cache:     memcache.New(memcache.Config{QueryCacheTTL: cfg.CacheTimeout(), MaxQueryCacheEntries: cfg.MaxCacheSize}),
		index:     vectorindex.New(cfg.Dimension),
		graph:     conceptgraph.New(),
	}, nil
}

// LoadHistory reads every persisted Interaction from the graph and
// populates the in-memory cache, vector index, and concept graph from it.
func (s *MemoryStore) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.executor.VerifyGraph(ctx); err != nil {
		return err
	}

	results, err := s.executor.Select(ctx, allInteractionsQuery(s.cfg.GraphName))
	if err != nil {
		return err
	}

	interactions, warnings := decodeInteractions(results, s.cfg.Dimension)
	for _, w := range warnings {
		log.Printf("memstore: %s", w)
	}

	s.cache.Reset()
	s.graph = conceptgraph.New()
	for _, interaction := range interactions {
		if interaction.MemoryType == types.LongTerm {
			s.cache.AppendLongTerm(interaction)
		} else {
			s.cache.AppendShortTerm(interaction)
		}
		s.graph.AddConcepts(interaction.Concepts)
	}
	s.syncIndexLocked()
	s.cache.MarkClean()
	return nil
}

// Store validates and persists a new interaction. If embedding or concepts
// are absent, the configured collaborators are consulted to fill them in.
// Persistence happens before any in-memory structure is mutated, so a
// failure never leaves store/index/graph out of sync with the persisted
// graph: there is nothing to roll back.
func (s *MemoryStore) Store(ctx context.Context, interaction *types.Interaction) (*types.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	interaction.Timestamp = nowMillis()
	interaction.AccessCount = 1
	interaction.DecayFactor = 1.0
	interaction.MemoryType = types.ShortTerm

	if len(interaction.Embedding) == 0 {
		if s.embedder == nil {
			return nil, types.NewError(types.KindConfigError, "no embedding supplied and no EmbeddingProducer configured", nil)
		}
		embedding, err := s.embedder.Embed(ctx, embeddingSourceText(interaction))
		if err != nil {
			return nil, fmt.Errorf("memstore: embedding generation failed: %w", err)
		}
		interaction.Embedding = embedding
	}

	if len(interaction.Concepts) == 0 && s.extractor != nil {
		concepts, err := s.extractor.Extract(ctx, embeddingSourceText(interaction))
		if err != nil {
			log.Printf("memstore: concept extraction failed for %s: %v", interaction.ID, err)
		} else {
			interaction.Concepts = concepts
		}
	}
	interaction.Concepts = types.DedupeConcepts(interaction.Concepts)
	if max := s.cfg.MaxConceptsPerInteraction; max > 0 && len(interaction.Concepts) > max {
		interaction.Concepts = interaction.Concepts[:max]
	}

	if err := vectorindex.Validate(interaction.Embedding, s.cfg.Dimension); err != nil {
		return nil, err
	}
	interaction.ContentHash = contentHash(interaction)

	tentative := append(s.allInteractionsLocked(), interaction)
	if err := s.persistLocked(ctx, tentative); err != nil {
		return nil, err
	}

	s.cache.AppendShortTerm(interaction)
	s.graph.AddConcepts(interaction.Concepts)
	s.syncIndexLocked()
	s.cache.MarkClean()

	return interaction, nil
}

// RetrieveParams bundles retrieve()'s inputs.
type RetrieveParams struct {
	QueryEmbedding []float64
	QueryConcepts  []string
	Threshold      float64
	ExcludeLastN   int
	Limit          int
}

// Retrieve ranks and filters candidates for a query. It takes only the
// reader lock and may run concurrently with any number of other Retrieve
// calls; it never mutates persisted state, though it does bump in-memory
// access counts (persisted on the next SaveMemoryToHistory).
func (s *MemoryStore) Retrieve(ctx context.Context, p RetrieveParams) ([]types.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threshold := normalizeThreshold(p.Threshold)
	limit := p.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	shortTerm := s.cache.ShortTerm()

	exclude := make(map[string]bool, p.ExcludeLastN)
	if p.ExcludeLastN > 0 {
		n := p.ExcludeLastN
		if n > len(shortTerm) {
			n = len(shortTerm)
		}
		for _, interaction := range shortTerm[len(shortTerm)-n:] {
			exclude[interaction.ID] = true
		}
	}

	fingerprint := memcache.Fingerprint(p.QueryEmbedding, p.QueryConcepts, threshold, p.ExcludeLastN)
	if cached, ok := s.cache.QueryCache().Get(fingerprint); ok {
		return cached, nil
	}

	candidates, err := s.engine.RetrieveCandidates(ctx, retrieval.Params{
		QueryEmbedding: p.QueryEmbedding,
		QueryConcepts:  p.QueryConcepts,
		Candidates:     shortTerm,
		Index:          s.index,
		Graph:          s.graph,
		Threshold:      threshold,
		ExcludeIDs:     exclude,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	filters := searchfilter.New(searchfilter.Config{Threshold: &threshold, MaxResults: limit})
	filtered, _ := filters.Run(ctx, candidates)

	s.cache.QueryCache().Put(fingerprint, filtered)
	for _, r := range filtered {
		if r.InteractionRef != nil {
			s.cache.IncrementAccessCount(r.InteractionRef.ID)
		}
	}

	return filtered, nil
}

// SaveMemoryToHistory persists the current in-memory state (both short-
// and long-term lists) to the graph inside a COPY/DROP/MOVE-backed
// transaction, replacing every prior Interaction triple in one shot.
func (s *MemoryStore) SaveMemoryToHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx, s.allInteractionsLocked()); err != nil {
		return err
	}
	s.cache.MarkClean()
	return nil
}

// ClassifyAndDecay applies exponential decay to every short-term
// interaction, demotes ones that have gone cold, and pins ones that have
// been accessed often. It is idempotent within the same millisecond.
func (s *MemoryStore) ClassifyAndDecay(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	if now == s.lastDecayAtMillis {
		return nil
	}

	lambda := s.cfg.DecayLambdaPerHour
	demoteBelow := s.cfg.LongTermDemotionDecay
	pinAtAccessCount := s.cfg.ShortTermPromotionAccessCount

	shortTerm := s.cache.ShortTerm()
	var toDemote []string
	for _, interaction := range shortTerm {
		ageHours := float64(now-interaction.Timestamp) / 3_600_000.0
		interaction.DecayFactor *= math.Exp(-lambda * ageHours)

		if interaction.DecayFactor < demoteBelow && interaction.AccessCount < demotionAccessCountCeiling {
			toDemote = append(toDemote, interaction.ID)
		}
		if interaction.AccessCount >= pinAtAccessCount {
			interaction.DecayFactor = 1.0
		}
	}
	for _, id := range toDemote {
		s.cache.PromoteToLongTerm(id)
	}

	s.syncIndexLocked()
	s.cache.MarkDirty()
	s.lastDecayAtMillis = now
	return nil
}

// Dispose rolls back any open transaction, flushes the cache if dirty, and
// releases the executor. VectorIndex and ConceptGraph hold no external
// handles, so "release" for them is simply dropping the references.
func (s *MemoryStore) Dispose(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Dirty() {
		if err := s.persistLocked(ctx, s.allInteractionsLocked()); err != nil {
			log.Printf("memstore: flush on dispose failed: %v", err)
		} else {
			s.cache.MarkClean()
		}
	}
	return s.executor.Dispose(ctx)
}

// persistLocked replaces every Interaction triple in the graph with the
// given set, inside a transaction. Caller must hold s.mu for writing.
func (s *MemoryStore) persistLocked(ctx context.Context, interactions []*types.Interaction) error {
	if _, err := s.executor.VerifyGraph(ctx); err != nil {
		return err
	}
	if err := s.executor.BeginTransaction(ctx); err != nil {
		return err
	}

	if err := s.executor.Update(ctx, deleteInteractionsUpdate(s.cfg.GraphName)); err != nil {
		s.rollbackAfter(ctx, err)
		return err
	}

	if len(interactions) > 0 {
		insertStmt, err := insertInteractionsUpdate(s.cfg.GraphName, interactions)
		if err != nil {
			s.rollbackAfter(ctx, err)
			return err
		}
		if err := s.executor.Update(ctx, insertStmt); err != nil {
			s.rollbackAfter(ctx, err)
			return err
		}
	}

	if err := s.executor.CommitTransaction(ctx); err != nil {
		s.rollbackAfter(ctx, err)
		return err
	}
	return nil
}

// rollbackAfter attempts a rollback following a failed update within a
// transaction, logging (but not returning) a secondary rollback failure;
// the original error is what propagates to the caller.
func (s *MemoryStore) rollbackAfter(ctx context.Context, cause error) {
	if err := s.executor.RollbackTransaction(ctx); err != nil {
		log.Printf("memstore: rollback after %v also failed: %v", cause, err)
	}
}

// syncIndexLocked rebuilds the vector index from the current short-term
// list, in the same order Retrieve snapshots it in, so that slot ids line
// up with positions in that snapshot. Caller must hold s.mu for writing.
func (s *MemoryStore) syncIndexLocked() {
	shortTerm := s.cache.ShortTerm()
	vecs := make([][]float64, len(shortTerm))
	for i, interaction := range shortTerm {
		vecs[i] = interaction.Embedding
	}
	s.index.Rebuild(vecs, nil)
}

// allInteractionsLocked returns every interaction currently in the cache,
// short-term first then long-term. Caller must hold s.mu.
func (s *MemoryStore) allInteractionsLocked() []*types.Interaction {
	shortTerm := s.cache.ShortTerm()
	longTerm := s.cache.LongTerm()
	all := make([]*types.Interaction, 0, len(shortTerm)+len(longTerm))
	all = append(all, shortTerm...)
	all = append(all, longTerm...)
	return all
}

// normalizeThreshold treats values above 1 as percentages, per spec.md
// §4.5/§9 — kept exactly, including the "anything above 1.0 divides by
// 100" behavior, even though a caller passing e.g. 70 instead of 0.70 will
// get what they meant while one passing 1.5 silently gets 0.015.
func normalizeThreshold(t float64) float64 {
	if t > 1 {
		return t / 100
	}
	return t
}

func embeddingSourceText(i *types.Interaction) string {
	return i.Prompt + " " + i.Output
}

func contentHash(i *types.Interaction) string {
	sum := sha256.Sum256([]byte(embeddingSourceText(i)))
	return hex.EncodeToString(sum[:])
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
