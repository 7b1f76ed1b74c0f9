package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danja/semem-sub009/internal/conceptgraph"
	"github.com/danja/semem-sub009/internal/vectorindex"
	"github.com/danja/semem-sub009/pkg/types"
)

func buildFixture(t *testing.T) (*vectorindex.Index, *conceptgraph.Graph, []*types.Interaction) {
	t.Helper()

	i1 := &types.Interaction{ID: "i1", Embedding: []float64{1, 0, 0, 0}, Concepts: []string{"greeting"}, DecayFactor: 1.0, AccessCount: 1, Timestamp: 100}
	i2 := &types.Interaction{ID: "i2", Embedding: []float64{0, 1, 0, 0}, Concepts: []string{"farewell"}, DecayFactor: 1.0, AccessCount: 1, Timestamp: 200}

	idx := vectorindex.New(4)
	idx.Rebuild([][]float64{i1.Embedding, i2.Embedding}, []int{0, 1})

	graph := conceptgraph.New()
	graph.AddConcepts([]string{"greeting", "hello"})

	return idx, graph, []*types.Interaction{i1, i2}
}

func TestRetrieveCandidates_BasicStoreRetrieve(t *testing.T) {
	idx, graph, candidates := buildFixture(t)
	engine := New()

	results, err := engine.RetrieveCandidates(context.Background(), Params{
		QueryEmbedding: []float64{1, 0, 0, 0},
		QueryConcepts:  []string{"greeting"},
		Candidates:     candidates,
		Index:          idx,
		Graph:          graph,
		Threshold:      0.5,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "i1", results[0].InteractionRef.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestRetrieveCandidates_EmptyCorpusReturnsEmpty(t *testing.T) {
	idx := vectorindex.New(4)
	graph := conceptgraph.New()
	engine := New()

	results, err := engine.RetrieveCandidates(context.Background(), Params{
		QueryEmbedding: []float64{1, 0, 0, 0},
		Index:          idx,
		Graph:          graph,
		Threshold:      0.5,
		Limit:          10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveCandidates_ThresholdAtOneRejectsImperfectMatches(t *testing.T) {
	idx, graph, candidates := buildFixture(t)
	engine := New()

	results, err := engine.RetrieveCandidates(context.Background(), Params{
		QueryEmbedding: []float64{1, 0, 0, 0},
		Candidates:     candidates,
		Index:          idx,
		Graph:          graph,
		Threshold:      1.0,
		Limit:          10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveCandidates_ExcludesGivenIDs(t *testing.T) {
	idx, graph, candidates := buildFixture(t)
	engine := New()

	results, err := engine.RetrieveCandidates(context.Background(), Params{
		QueryEmbedding: []float64{1, 0, 0, 0},
		Candidates:     candidates,
		Index:          idx,
		Graph:          graph,
		Threshold:      0.0,
		ExcludeIDs:     map[string]bool{"i1": true},
		Limit:          10,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "i1", r.InteractionRef.ID)
	}
}

func TestRetrieveCandidates_TieBreakByTimestampThenID(t *testing.T) {
	i1 := &types.Interaction{ID: "b", Embedding: []float64{1, 0}, DecayFactor: 1.0, Timestamp: 100}
	i2 := &types.Interaction{ID: "a", Embedding: []float64{1, 0}, DecayFactor: 1.0, Timestamp: 200}

	idx := vectorindex.New(2)
	idx.Rebuild([][]float64{i1.Embedding, i2.Embedding}, []int{0, 1})
	graph := conceptgraph.New()
	engine := New()

	results, err := engine.RetrieveCandidates(context.Background(), Params{
		QueryEmbedding: []float64{1, 0},
		Candidates:     []*types.Interaction{i1, i2},
		Index:          idx,
		Graph:          graph,
		Threshold:      0.0,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].InteractionRef.ID) // newer timestamp wins the tie
}
