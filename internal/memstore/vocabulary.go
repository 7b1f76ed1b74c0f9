package memstore

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/danja/semem-sub009/internal/sparql"
	"github.com/danja/semem-sub009/internal/vectorindex"
	"github.com/danja/semem-sub009/pkg/types"
)

// prefixHeader is prepended to every query/update issued by MemoryStore.
const prefixHeader = `PREFIX semem: <http://purl.org/stuff/semem/>
PREFIX ragno: <http://purl.org/stuff/ragno/>
PREFIX xsd:   <http://www.w3.org/2001/XMLSchema#>
`

// allInteractionsQuery selects every Interaction triple group from the
// named graph in a single row per interaction.
func allInteractionsQuery(graphName string) string {
	return prefixHeader + fmt.Sprintf(`SELECT ?id ?prompt ?output ?embedding ?timestamp ?accessCount ?concepts ?decayFactor ?memoryType WHERE {
  GRAPH <%s> {
    ?i a semem:Interaction ;
       semem:id ?id ;
       semem:prompt ?prompt ;
       semem:output ?output ;
       semem:embedding ?embedding ;
       semem:timestamp ?timestamp ;
       semem:accessCount ?accessCount ;
       semem:concepts ?concepts ;
       semem:decayFactor ?decayFactor ;
       semem:memoryType ?memoryType .
  }
}`, graphName)
}

// deleteInteractionsUpdate clears every prior Interaction triple from the
// graph, ahead of re-inserting the current in-memory state.
func deleteInteractionsUpdate(graphName string) string {
	return prefixHeader + fmt.Sprintf(`DELETE WHERE {
  GRAPH <%s> {
    ?i a semem:Interaction ; ?p ?o .
  }
}`, graphName)
}

// insertInteractionsUpdate builds a single INSERT DATA statement covering
// every interaction in both lists, plus ragno:connectsTo relationships for
// the concept co-occurrences observed across them.
func insertInteractionsUpdate(graphName string, interactions []*types.Interaction) (string, error) {
	var body strings.Builder
	for i, interaction := range interactions {
		triples, err := encodeInteraction(interaction, i)
		if err != nil {
			return "", err
		}
		body.WriteString(triples)
	}
	body.WriteString(encodeConceptEdges(interactions))

	return prefixHeader + fmt.Sprintf("INSERT DATA {\n  GRAPH <%s> {\n%s  }\n}", graphName, body.String()), nil
}

func encodeInteraction(i *types.Interaction, ordinal int) (string, error) {
	embeddingText := vectorindex.EncodeEmbedding(i.Embedding)
	conceptsJSON, err := json.Marshal(i.Concepts)
	if err != nil {
		return "", fmt.Errorf("memstore: failed to encode concepts: %w", err)
	}

	subject := fmt.Sprintf("_:i%d", ordinal)
	return fmt.Sprintf(`    %s a semem:Interaction ;
      semem:id          %s ;
      semem:prompt      %s ;
      semem:output      %s ;
      semem:embedding   %s ;
      semem:timestamp   "%d"^^xsd:integer ;
      semem:accessCount "%d"^^xsd:integer ;
      semem:concepts    %s ;
      semem:decayFactor "%s"^^xsd:decimal ;
      semem:memoryType  %s .
`,
		subject,
		escapeLiteral(i.ID),
		escapeLiteral(i.Prompt),
		escapeLiteral(i.Output),
		escapeLiteral(embeddingText),
		i.Timestamp,
		i.AccessCount,
		escapeLiteral(string(conceptsJSON)),
		strconv.FormatFloat(i.DecayFactor, 'f', -1, 64),
		escapeLiteral(string(i.MemoryType)),
	), nil
}

// encodeConceptEdges materializes ragno:connectsTo relationships between
// concept unit nodes for every co-occurring pair across the given
// interactions. URIs are derived by URL-encoding the concept label, per
// spec.md §6.1.
func encodeConceptEdges(interactions []*types.Interaction) string {
	seen := make(map[string]bool)
	var body strings.Builder
	for _, interaction := range interactions {
		concepts := interaction.Concepts
		for a := 0; a < len(concepts); a++ {
			for b := a + 1; b < len(concepts); b++ {
				key := concepts[a] + "\x00" + concepts[b]
				if seen[key] {
					continue
				}
				seen[key] = true
				body.WriteString(fmt.Sprintf("    <%s> ragno:connectsTo <%s> .\n", conceptURI(concepts[a]), conceptURI(concepts[b])))
			}
		}
	}
	return body.String()
}

func conceptURI(label string) string {
	return "http://purl.org/stuff/ragno/concept/" + url.QueryEscape(label)
}

// escapeLiteral escapes a SPARQL string literal per spec.md §6.1 and wraps
// it in double quotes.
func escapeLiteral(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + replacer.Replace(s) + `"`
}

// decodeInteractions turns SELECT results from allInteractionsQuery back
// into Interaction values. Per-row parse errors (malformed embedding or
// concepts JSON) are repaired in place rather than dropped: the row keeps
// its identity but gets a zero embedding / empty concepts.
func decodeInteractions(results *sparql.ResultBindings, dimension int) ([]*types.Interaction, []string) {
	var interactions []*types.Interaction
	var warnings []string

	for _, binding := range results.Results.Bindings {
		i := &types.Interaction{
			ID:         binding["id"].Value,
			Prompt:     binding["prompt"].Value,
			Output:     binding["output"].Value,
			MemoryType: types.MemoryType(binding["memoryType"].Value),
		}

		if ts, err := strconv.ParseInt(binding["timestamp"].Value, 10, 64); err == nil {
			i.Timestamp = ts
		}
		if ac, err := strconv.Atoi(binding["accessCount"].Value); err == nil {
			i.AccessCount = ac
		}
		if df, err := strconv.ParseFloat(binding["decayFactor"].Value, 64); err == nil {
			i.DecayFactor = df
		}

		embedding, err := vectorindex.DecodeEmbedding(binding["embedding"].Value)
		if err != nil || len(embedding) != dimension {
			warnings = append(warnings, fmt.Sprintf("interaction %s: invalid embedding, repaired with zero vector: %v", i.ID, err))
			embedding = make([]float64, dimension)
		}
		i.Embedding = embedding

		var concepts []string
		if err := json.Unmarshal([]byte(binding["concepts"].Value), &concepts); err != nil {
			warnings = append(warnings, fmt.Sprintf("interaction %s: invalid concepts, repaired with empty list: %v", i.ID, err))
			concepts = nil
		}
		i.Concepts = concepts

		if !types.IsValidMemoryType(i.MemoryType) {
			i.MemoryType = types.ShortTerm
		}

		interactions = append(interactions, i)
	}

	return interactions, warnings
}
