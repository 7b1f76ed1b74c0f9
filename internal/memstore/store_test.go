package memstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danja/semem-sub009/internal/config"
	"github.com/danja/semem-sub009/pkg/types"
)

// fakeGraphStore is a minimal in-memory stand-in for a SPARQL endpoint,
// just capable enough to round-trip the exact INSERT DATA / DELETE WHERE /
// COPY/DROP/MOVE shapes this package emits. It is not a general SPARQL
// engine.
type fakeGraphStore struct {
	mu      sync.Mutex
	current []fakeInteraction
	backup  []fakeInteraction
	hasBackup bool
}

type fakeInteraction struct {
	id, prompt, output, embedding, concepts, decayFactor, memoryType string
	timestamp, accessCount                                          int64
}

var fieldPattern = map[string]*regexp.Regexp{
	"id":          regexp.MustCompile(`semem:id\s+"((?:[^"\\]|\\.)*)"`),
	"prompt":      regexp.MustCompile(`semem:prompt\s+"((?:[^"\\]|\\.)*)"`),
	"output":      regexp.MustCompile(`semem:output\s+"((?:[^"\\]|\\.)*)"`),
	"embedding":   regexp.MustCompile(`semem:embedding\s+"((?:[^"\\]|\\.)*)"`),
	"timestamp":   regexp.MustCompile(`semem:timestamp\s+"(\d+)"`),
	"accessCount": regexp.MustCompile(`semem:accessCount\s+"(\d+)"`),
	"concepts":    regexp.MustCompile(`semem:concepts\s+"((?:[^"\\]|\\.)*)"`),
	"decayFactor": regexp.MustCompile(`semem:decayFactor\s+"([^"]*)"`),
	"memoryType":  regexp.MustCompile(`semem:memoryType\s+"([^"]*)"`),
}

func unescapeLiteral(s string) string {
	r := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\\`, `\`)
	return r.Replace(s)
}

func parseInsertedInteractions(body string) []fakeInteraction {
	matches := make(map[string][]string)
	for field, re := range fieldPattern {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			matches[field] = append(matches[field], m[1])
		}
	}
	n := len(matches["id"])
	out := make([]fakeInteraction, 0, n)
	for i := 0; i < n; i++ {
		ts, _ := strconv.ParseInt(matches["timestamp"][i], 10, 64)
		ac, _ := strconv.ParseInt(matches["accessCount"][i], 10, 64)
		out = append(out, fakeInteraction{
			id:          unescapeLiteral(matches["id"][i]),
			prompt:      unescapeLiteral(matches["prompt"][i]),
			output:      unescapeLiteral(matches["output"][i]),
			embedding:   unescapeLiteral(matches["embedding"][i]),
			concepts:    unescapeLiteral(matches["concepts"][i]),
			decayFactor: matches["decayFactor"][i],
			memoryType:  matches["memoryType"][i],
			timestamp:   ts,
			accessCount: ac,
		})
	}
	return out
}

func newFakeGraphServer(t *testing.T, store *fakeGraphStore) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body := string(buf)

		store.mu.Lock()
		defer store.mu.Unlock()

		switch {
		case strings.Contains(body, "COPY GRAPH"):
			store.backup = append([]fakeInteraction(nil), store.current...)
			store.hasBackup = true
		case strings.Contains(body, "DELETE WHERE"):
			store.current = nil
		case strings.Contains(body, "MOVE GRAPH"):
			store.current = append([]fakeInteraction(nil), store.backup...)
			store.hasBackup = false
		case strings.Contains(body, "DROP SILENT"):
			store.hasBackup = false
		case strings.Contains(body, "INSERT DATA") && strings.Contains(body, "semem:Interaction"):
			store.current = parseInsertedInteractions(body)
		}

		if r.Header.Get("Accept") == "application/sparql-results+json" && strings.Contains(r.Header.Get("Content-Type"), "sparql-query") {
			writeSelectResponse(w, body, store.current)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func writeSelectResponse(w http.ResponseWriter, query string, current []fakeInteraction) {
	type value struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	type binding map[string]value

	var bindings []binding
	switch {
	case strings.Contains(query, "COUNT(*)"):
		bindings = []binding{{"c": value{"literal", strconv.Itoa(len(current) * 9)}}}
	case strings.Contains(query, "semem:Interaction"):
		for _, fi := range current {
			bindings = append(bindings, binding{
				"id":          {"literal", fi.id},
				"prompt":      {"literal", fi.prompt},
				"output":      {"literal", fi.output},
				"embedding":   {"literal", fi.embedding},
				"timestamp":   {"literal", strconv.FormatInt(fi.timestamp, 10)},
				"accessCount": {"literal", strconv.FormatInt(fi.accessCount, 10)},
				"concepts":    {"literal", fi.concepts},
				"decayFactor": {"literal", fi.decayFactor},
				"memoryType":  {"literal", fi.memoryType},
			})
		}
	}

	resp := struct {
		Head struct {
			Vars []string `json:"vars"`
		} `json:"head"`
		Results struct {
			Bindings []binding `json:"bindings"`
		} `json:"results"`
	}{}
	resp.Results.Bindings = bindings

	w.Header().Set("Content-Type", "application/sparql-results+json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestStore(t *testing.T, dimension int) (*MemoryStore, *fakeGraphStore) {
	t.Helper()
	fake := &fakeGraphStore{}
	server := newFakeGraphServer(t, fake)
	t.Cleanup(server.Close)

	cfg := config.Load()
	cfg.Dimension = dimension
	cfg.GraphName = "http://example.org/semem"
	cfg.Endpoint.QueryURL = server.URL
	cfg.Endpoint.UpdateURL = server.URL

	store, err := New(cfg, nil, nil)
	require.NoError(t, err)
	return store, fake
}

func mustStore(t *testing.T, store *MemoryStore, prompt, output string, embedding []float64, concepts []string) *types.Interaction {
	t.Helper()
	i, err := store.Store(context.Background(), &types.Interaction{
		Prompt:    prompt,
		Output:    output,
		Embedding: embedding,
		Concepts:  concepts,
	})
	require.NoError(t, err)
	return i
}

func TestStore_BasicStoreRetrieve(t *testing.T) {
	store, _ := newTestStore(t, 4)

	i1 := mustStore(t, store, "hello", "world", []float64{1, 0, 0, 0}, []string{"greeting"})
	mustStore(t, store, "bye", "later", []float64{0, 1, 0, 0}, []string{"farewell"})

	results, err := store.Retrieve(context.Background(), RetrieveParams{
		QueryEmbedding: []float64{1, 0, 0, 0},
		QueryConcepts:  []string{"greeting"},
		Threshold:      0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, i1.ID, results[0].InteractionRef.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestStore_RejectsDimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t, 4)

	_, err := store.Store(context.Background(), &types.Interaction{
		Prompt:    "bad",
		Output:    "vector",
		Embedding: []float64{1, 0},
	})
	require.Error(t, err)
	assert.Equal(t, types.KindDimensionMismatch, types.KindOf(err))
	assert.Equal(t, 0, store.cache.Len())
}

func TestRetrieve_EmptyCorpusReturnsEmptyNotError(t *testing.T) {
	store, _ := newTestStore(t, 4)

	results, err := store.Retrieve(context.Background(), RetrieveParams{
		QueryEmbedding: []float64{1, 0, 0, 0},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_ThresholdAtOneRejectsImperfectMatches(t *testing.T) {
	store, _ := newTestStore(t, 4)
	mustStore(t, store, "p", "o", []float64{1, 0, 0, 0}, nil)

	results, err := store.Retrieve(context.Background(), RetrieveParams{
		QueryEmbedding: []float64{0.9, 0.1, 0, 0},
		Threshold:      1.0,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClassifyAndDecay_DemotesColdInteraction(t *testing.T) {
	store, _ := newTestStore(t, 4)
	interaction := mustStore(t, store, "old", "memory", []float64{1, 0, 0, 0}, nil)

	store.mu.Lock()
	interaction.Timestamp -= 1000 * 3_600_000 // 1000 hours ago
	interaction.AccessCount = 1
	store.mu.Unlock()

	require.NoError(t, store.ClassifyAndDecay(context.Background()))

	longTerm := store.cache.LongTerm()
	require.Len(t, longTerm, 1)
	assert.Equal(t, interaction.ID, longTerm[0].ID)
	assert.Less(t, longTerm[0].DecayFactor, 0.5)
	assert.Empty(t, store.cache.ShortTerm())
}

func TestClassifyAndDecay_IdempotentWithinSameMillisecond(t *testing.T) {
	store, _ := newTestStore(t, 4)
	mustStore(t, store, "p", "o", []float64{1, 0, 0, 0}, nil)

	require.NoError(t, store.ClassifyAndDecay(context.Background()))
	before := store.cache.ShortTerm()[0].DecayFactor

	store.lastDecayAtMillis = nowMillis()
	require.NoError(t, store.ClassifyAndDecay(context.Background()))
	after := store.cache.ShortTerm()[0].DecayFactor

	assert.Equal(t, before, after)
}

func TestLoadHistory_RoundTripsStoredInteractions(t *testing.T) {
	store, fake := newTestStore(t, 4)
	i1 := mustStore(t, store, "hello", "world", []float64{1, 0, 0, 0}, []string{"greeting"})

	fresh, err := New(loadableConfig(t, fake), nil, nil)
	require.NoError(t, err)
	require.NoError(t, fresh.LoadHistory(context.Background()))

	loaded, ok := fresh.cache.ByID(i1.ID)
	require.True(t, ok)
	assert.Equal(t, i1.Prompt, loaded.Prompt)
	assert.Equal(t, i1.Concepts, loaded.Concepts)
	for i, f := range i1.Embedding {
		assert.InDelta(t, f, loaded.Embedding[i], 1e-12)
	}
}

func loadableConfig(t *testing.T, fake *fakeGraphStore) *config.StoreConfig {
	t.Helper()
	server := newFakeGraphServer(t, fake)
	t.Cleanup(server.Close)
	cfg := config.Load()
	cfg.Dimension = 4
	cfg.GraphName = "http://example.org/semem"
	cfg.Endpoint.QueryURL = server.URL
	cfg.Endpoint.UpdateURL = server.URL
	return cfg
}

func TestStore_PersistenceFailureLeavesCacheUnchanged(t *testing.T) {
	fake := &fakeGraphStore{}
	rejectingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body := string(buf)
		if strings.Contains(body, "INSERT DATA") && strings.Contains(body, "semem:Interaction") {
			http.Error(w, "malformed update rejected", http.StatusBadRequest)
			return
		}
		fake.mu.Lock()
		switch {
		case strings.Contains(body, "COPY GRAPH"):
			fake.backup = append([]fakeInteraction(nil), fake.current...)
		case strings.Contains(body, "DELETE WHERE"):
			fake.current = nil
		case strings.Contains(body, "MOVE GRAPH"):
			fake.current = append([]fakeInteraction(nil), fake.backup...)
		}
		current := fake.current
		fake.mu.Unlock()

		if r.Header.Get("Accept") == "application/sparql-results+json" && strings.Contains(body, "COUNT(*)") {
			writeSelectResponse(w, body, current)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rejectingServer.Close)

	cfg := config.Load()
	cfg.Dimension = 4
	cfg.GraphName = "http://example.org/semem"
	cfg.Endpoint.QueryURL = rejectingServer.URL
	cfg.Endpoint.UpdateURL = rejectingServer.URL

	store, err := New(cfg, nil, nil)
	require.NoError(t, err)

	_, err = store.Store(context.Background(), &types.Interaction{
		Prompt:    "p",
		Output:    "o",
		Embedding: []float64{1, 0, 0, 0},
	})
	require.Error(t, err)
	assert.Empty(t, store.cache.ShortTerm(), "failed persistence must not leave the in-memory append applied")
}

func TestEncodeInteraction_EscapesQuotesAndNewlines(t *testing.T) {
	triples, err := encodeInteraction(&types.Interaction{
		ID:       "i1",
		Prompt:   `she said "hi"` + "\nline two",
		Output:   "ok",
		Concepts: []string{"a"},
	}, 0)
	require.NoError(t, err)
	assert.Contains(t, triples, `\"hi\"`)
	assert.Contains(t, triples, `\n`)
}
