// Package sparql implements C1: execution of SPARQL 1.1 SELECT/UPDATE
// against a remote endpoint, with basic auth, per-request deadlines, and
// named-graph-scoped transactions built from COPY/DROP/MOVE.
package sparql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/danja/semem-sub009/pkg/types"
)

// Executor executes SELECT/UPDATE against a remote SPARQL endpoint and
// manages graph-level transactions. It is safe for concurrent use; the
// transaction state machine is guarded internally.
type Executor struct {
	cfg Config

	client  *http.Client
	breaker *circuitBreaker
	limiter *rate.Limiter

	mu    sync.Mutex
	state state
}

// NewExecutor builds an Executor against the given endpoint configuration.
func NewExecutor(cfg Config) *Executor {
	cfg.normalize()

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}

	return &Executor{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newCircuitBreaker(circuitBreakerConfig{MaxFailures: cfg.MaxFailures, Timeout: cfg.BreakerTimeout, HalfOpenMaxSuccesses: 2}),
		limiter: limiter,
		state:   stateIdle,
	}
}

// Select executes a SPARQL 1.1 SELECT query and returns the parsed JSON
// results. Fails with a types.Error tagged NetworkError, Timeout, AuthError,
// or EndpointError.
func (e *Executor) Select(ctx context.Context, query string) (*ResultBindings, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	body, err := e.doRequest(ctx, e.cfg.QueryURL, "application/sparql-query", "application/sparql-results+json", query)
	if err != nil {
		return nil, err
	}

	var parsed ResultBindings
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewError(types.KindEndpointError, "malformed SPARQL JSON results", err)
	}
	return &parsed, nil
}

// Update executes a SPARQL 1.1 UPDATE and returns only once the server has
// acknowledged with a 2xx status.
func (e *Executor) Update(ctx context.Context, sparqlUpdate string) error {
	if err := e.checkAlive(); err != nil {
		return err
	}
	_, err := e.doRequest(ctx, e.cfg.UpdateURL, "application/sparql-update", "application/sparql-results+json", sparqlUpdate)
	return err
}

// VerifyGraph idempotently ensures the configured graph exists and returns
// its current triple count. Safe to call repeatedly; CREATE SILENT is a
// no-op if the graph is already present.
func (e *Executor) VerifyGraph(ctx context.Context) (int64, error) {
	if err := e.checkAlive(); err != nil {
		return 0, err
	}

	createAndTag := fmt.Sprintf(
		"CREATE SILENT GRAPH <%s> ; INSERT DATA { GRAPH <%s> { <%s> <http://purl.org/stuff/semem/managedBy> \"semem-core\" } }",
		e.cfg.GraphName, e.cfg.GraphName, e.cfg.GraphName,
	)
	if err := e.Update(ctx, createAndTag); err != nil {
		return 0, err
	}

	countQuery := fmt.Sprintf("SELECT (COUNT(*) AS ?c) WHERE { GRAPH <%s> { ?s ?p ?o } }", e.cfg.GraphName)
	results, err := e.Select(ctx, countQuery)
	if err != nil {
		return 0, err
	}
	if len(results.Results.Bindings) == 0 {
		return 0, nil
	}
	v, ok := results.Results.Bindings[0]["c"]
	if !ok {
		return 0, nil
	}
	var count int64
	if _, err := fmt.Sscanf(v.Value, "%d", &count); err != nil {
		return 0, types.NewError(types.KindEndpointError, "unparseable triple count", err)
	}
	return count, nil
}

// BeginTransaction snapshots the graph into a backup graph via COPY. Fails
// with TransactionAlreadyActive if one is already in progress.
func (e *Executor) BeginTransaction(ctx context.Context) error {
	e.mu.Lock()
	if e.state == stateDisposed {
		e.mu.Unlock()
		return types.NewError(types.KindNoTransactionInProgress, "executor disposed", nil)
	}
	if e.state == stateInTransaction {
		e.mu.Unlock()
		return types.NewError(types.KindTransactionAlreadyActive, "a transaction is already in progress", nil)
	}
	e.mu.Unlock()

	copyStmt := fmt.Sprintf("COPY GRAPH <%s> TO GRAPH <%s>", e.cfg.GraphName, e.cfg.backupGraph())
	if err := e.Update(ctx, copyStmt); err != nil {
		return err
	}

	e.mu.Lock()
	e.state = stateInTransaction
	e.mu.Unlock()
	return nil
}

// CommitTransaction discards the backup graph, making the current graph
// state final.
func (e *Executor) CommitTransaction(ctx context.Context) error {
	e.mu.Lock()
	if e.state != stateInTransaction {
		e.mu.Unlock()
		return types.NewError(types.KindNoTransactionInProgress, "commit called with no active transaction", nil)
	}
	e.mu.Unlock()

	dropStmt := fmt.Sprintf("DROP SILENT GRAPH <%s>", e.cfg.backupGraph())
	if err := e.Update(ctx, dropStmt); err != nil {
		// Leave the backup graph intact; a later rollback can still restore it.
		return err
	}

	e.mu.Lock()
	e.state = stateIdle
	e.mu.Unlock()
	return nil
}

// RollbackTransaction drops the current graph and moves the backup graph
// back into place, restoring the pre-transaction state exactly.
func (e *Executor) RollbackTransaction(ctx context.Context) error {
	e.mu.Lock()
	if e.state != stateInTransaction {
		e.mu.Unlock()
		return types.NewError(types.KindNoTransactionInProgress, "rollback called with no active transaction", nil)
	}
	e.mu.Unlock()

	restoreStmt := fmt.Sprintf("DROP SILENT GRAPH <%s> ; MOVE GRAPH <%s> TO GRAPH <%s>", e.cfg.GraphName, e.cfg.backupGraph(), e.cfg.GraphName)
	if err := e.Update(ctx, restoreStmt); err != nil {
		return err
	}

	e.mu.Lock()
	e.state = stateIdle
	e.mu.Unlock()
	return nil
}

// InTransaction reports whether a transaction is currently open.
func (e *Executor) InTransaction() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateInTransaction
}

// Dispose rolls back any open transaction and permanently disables the
// executor. Any operation after Dispose fails.
func (e *Executor) Dispose(ctx context.Context) error {
	e.mu.Lock()
	inTx := e.state == stateInTransaction
	e.mu.Unlock()

	if inTx {
		if err := e.RollbackTransaction(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.state = stateDisposed
	e.mu.Unlock()
	return nil
}

func (e *Executor) checkAlive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateDisposed {
		return types.NewError(types.KindNoTransactionInProgress, "executor has been disposed", nil)
	}
	return nil
}

// doRequest sends a single SPARQL protocol request through the rate
// limiter and circuit breaker, and maps the outcome onto the error
// taxonomy required by §4.1.
func (e *Executor) doRequest(ctx context.Context, url, contentType, accept, body string) ([]byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.KindTimeout, "rate limiter wait cancelled", err)
		}
	}

	result, err := e.breaker.Execute(ctx, func() (interface{}, error) {
		return e.send(ctx, url, contentType, accept, body)
	})
	if err != nil {
		if err == ErrCircuitOpen {
			return nil, types.NewError(types.KindNetworkError, "sparql endpoint circuit open", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (e *Executor) send(ctx context.Context, url, contentType, accept, body string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, types.NewError(types.KindNetworkError, "failed to build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", accept)
	if e.cfg.User != "" {
		req.SetBasicAuth(e.cfg.User, e.cfg.Password)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.KindTimeout, "sparql request timed out", err)
		}
		return nil, types.NewError(types.KindNetworkError, "sparql request failed", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, types.NewError(types.KindNetworkError, "failed to read sparql response", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, types.NewError(types.KindAuthError, "sparql endpoint rejected credentials", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.NewError(types.KindEndpointError, fmt.Sprintf("sparql endpoint returned %d", resp.StatusCode), fmt.Errorf("%s", string(respBody)))
	}

	return respBody, nil
}
