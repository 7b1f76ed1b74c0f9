// cmd/semem-verify is a small operational tool for checking that a
// configured SPARQL endpoint is reachable and behaves the way MemoryStore
// expects: the named graph exists (or can be created), history loads
// without error, and a round-trip store/retrieve against a throwaway
// interaction succeeds.
//
// It never talks to stdout/stdin as a protocol, so ordinary log output is
// fine here, unlike the MCP-style servers this codebase also used to ship.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/danja/semem-sub009/internal/config"
	"github.com/danja/semem-sub009/internal/memstore"
	"github.com/danja/semem-sub009/pkg/types"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("semem-verify: ")

	yamlPath := flag.String("config", "", "optional YAML overlay path")
	skipSmoke := flag.Bool("skip-smoke-test", false, "only verify the graph and load history, skip the store/retrieve round trip")
	flag.Parse()

	cfg := config.Load()
	if *yamlPath != "" {
		if err := config.LoadYAML(cfg, *yamlPath); err != nil {
			log.Fatalf("loading config overlay: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := memstore.New(cfg, nil, nil)
	if err != nil {
		log.Fatalf("building store: %v", err)
	}
	defer store.Dispose(ctx)

	fmt.Printf("endpoint:     %s\n", cfg.Endpoint.QueryURL)
	fmt.Printf("graph:        %s\n", cfg.GraphName)
	fmt.Printf("dimension:    %d\n", cfg.Dimension)

	if err := store.LoadHistory(ctx); err != nil {
		log.Fatalf("graph unreachable or history failed to load: %v", err)
	}
	fmt.Println("history:      OK")

	if *skipSmoke {
		fmt.Println("status:       READY")
		return
	}

	probe := randomEmbedding(cfg.Dimension)
	interaction := &types.Interaction{
		ID:        uuid.NewString(),
		Prompt:    "semem-verify smoke test",
		Output:    "semem-verify smoke test response",
		Embedding: probe,
		Concepts:  []string{"semem-verify"},
	}

	stored, err := store.Store(ctx, interaction)
	if err != nil {
		log.Fatalf("smoke store failed: %v", err)
	}
	fmt.Printf("store:        OK (id=%s)\n", stored.ID)

	results, err := store.Retrieve(ctx, memstore.RetrieveParams{
		QueryEmbedding: probe,
		Threshold:      0.0,
		Limit:          5,
	})
	if err != nil {
		log.Fatalf("smoke retrieve failed: %v", err)
	}
	found := false
	for _, r := range results {
		if r.InteractionRef != nil && r.InteractionRef.ID == stored.ID {
			found = true
			break
		}
	}
	if !found {
		log.Fatalf("smoke retrieve did not return the interaction it just stored (got %d results)", len(results))
	}
	fmt.Println("retrieve:     OK")

	fmt.Println("status:       READY")
	os.Exit(0)
}

func randomEmbedding(dimension int) []float64 {
	v := make([]float64, dimension)
	for i := range v {
		v[i] = rand.Float64()*2 - 1
	}
	return v
}
