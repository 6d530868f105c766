package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature/internal/api/models"
	"github.com/wonhochoi1/nature/internal/engine/ir"

	_ "modernc.org/sqlite"
)

// ContextOptions configures the session resources of a run.
type ContextOptions struct {
	// SessionDSN is handed to the sqlite driver. Defaults to ":memory:".
	SessionDSN string
	// Connections are the named external databases SQLQuery nodes may use.
	Connections models.Connections
	// FileRoot confines FileIO paths.
	FileRoot string
	Logger   zerolog.Logger
}

// ExecutionContext is the run-scoped store threaded through every dispatch:
// node values, function results, error entries, and the session resources.
type ExecutionContext struct {
	values   map[string]any
	order    []string
	previous string
	display  []string

	sessionDSN  string
	session     *sql.DB
	configs     models.Connections
	Connections map[string]*sql.DB
	fileRoot    string

	closed bool
	logger zerolog.Logger
	mu     sync.RWMutex
}

func NewExecutionContext(opts ContextOptions) *ExecutionContext {
	dsn := opts.SessionDSN
	if dsn == "" {
		dsn = ":memory:"
	}
	configs := opts.Connections
	if configs == nil {
		configs = models.Connections{}
	}
	return &ExecutionContext{
		values:      make(map[string]any),
		sessionDSN:  dsn,
		configs:     configs,
		Connections: make(map[string]*sql.DB),
		fileRoot:    opts.FileRoot,
		logger:      opts.Logger,
	}
}

// Get returns the value stored under key, or a dependency error.
func (ec *ExecutionContext) Get(key string) (any, error) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.values[key]
	if !ok {
		return nil, dependencyErrorf("%q has not been published", key)
	}
	return v, nil
}

func (ec *ExecutionContext) Has(key string) bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	_, ok := ec.values[key]
	return ok
}

// Set stores value under key. Last write wins.
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, exists := ec.values[key]; !exists {
		ec.order = append(ec.order, key)
	}
	ec.values[key] = value
}

// Delete removes key. Used to roll back the entries of a failed attempt.
func (ec *ExecutionContext) Delete(key string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, exists := ec.values[key]; !exists {
		return
	}
	delete(ec.values, key)
	for i, k := range ec.order {
		if k == key {
			ec.order = append(ec.order[:i], ec.order[i+1:]...)
			break
		}
	}
}

// Keys returns the stored keys in the order they were first written.
func (ec *ExecutionContext) Keys() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make([]string, len(ec.order))
	copy(out, ec.order)
	return out
}

// Snapshot returns a shallow copy of the stored values.
func (ec *ExecutionContext) Snapshot() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]any, len(ec.values))
	for k, v := range ec.values {
		out[k] = v
	}
	return out
}

// Publish records a function result and makes it the target of "previous".
func (ec *ExecutionContext) Publish(function string, value any) {
	ec.Set(function, value)
	ec.mu.Lock()
	ec.previous = function
	ec.mu.Unlock()
}

// Previous returns the most recently completed function.
func (ec *ExecutionContext) Previous() (string, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.previous, ec.previous != ""
}

// ResolveFunction maps a function reference ("previous" or a name) to its
// published value.
func (ec *ExecutionContext) ResolveFunction(ref string) (any, error) {
	name := ref
	if ref == ir.PreviousFunction {
		prev, ok := ec.Previous()
		if !ok {
			return nil, dependencyErrorf("no function has completed yet")
		}
		name = prev
	}
	return ec.Get(name)
}

// Display records a line shown by a Print node.
func (ec *ExecutionContext) Display(line string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.display = append(ec.display, line)
}

// attemptSavepoint wraps the session store writes of one function attempt.
const attemptSavepoint = "nature_attempt"

// Checkpoint is the state a failed attempt rolls back to.
type Checkpoint struct {
	display   int
	savepoint bool
}

// Checkpoint marks the displayed lines and, when session is set, opens a
// savepoint in the session store.
func (ec *ExecutionContext) Checkpoint(ctx context.Context, session bool) (Checkpoint, error) {
	ec.mu.RLock()
	cp := Checkpoint{display: len(ec.display)}
	ec.mu.RUnlock()
	if !session {
		return cp, nil
	}

	db, err := ec.Session(ctx)
	if err != nil {
		return cp, err
	}
	if _, err := db.ExecContext(ctx, "SAVEPOINT "+attemptSavepoint); err != nil {
		return cp, fmt.Errorf("failed to open savepoint: %w", err)
	}
	cp.savepoint = true
	return cp, nil
}

// Release keeps the session store writes made since cp.
func (ec *ExecutionContext) Release(ctx context.Context, cp Checkpoint) error {
	if !cp.savepoint {
		return nil
	}
	db, err := ec.Session(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(context.WithoutCancel(ctx), "RELEASE "+attemptSavepoint); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// Rollback drops the lines displayed and the session store writes made
// since cp.
func (ec *ExecutionContext) Rollback(ctx context.Context, cp Checkpoint) error {
	ec.mu.Lock()
	if len(ec.display) > cp.display {
		ec.display = ec.display[:cp.display]
	}
	ec.mu.Unlock()
	if !cp.savepoint {
		return nil
	}

	db, err := ec.Session(ctx)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if _, err := db.ExecContext(ctx, "ROLLBACK TO "+attemptSavepoint); err != nil {
		return fmt.Errorf("failed to roll back savepoint: %w", err)
	}
	if _, err := db.ExecContext(ctx, "RELEASE "+attemptSavepoint); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (ec *ExecutionContext) Displayed() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make([]string, len(ec.display))
	copy(out, ec.display)
	return out
}

func (ec *ExecutionContext) FileRoot() string {
	return ec.fileRoot
}

// Session returns the run's relational store, opening it on first use. It
// stays open until Close so later functions see what earlier ones committed.
func (ec *ExecutionContext) Session(ctx context.Context) (*sql.DB, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.closed {
		return nil, errors.New("execution context is closed")
	}
	if ec.session != nil {
		return ec.session, nil
	}

	db, err := sql.Open("sqlite", ec.sessionDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	// a single connection keeps ":memory:" one database for the whole run
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session store: %w", err)
	}

	ec.session = db
	ec.logger.Debug().Str("dsn", ec.sessionDSN).Msg("Session store opened")
	return db, nil
}

// InitConnection opens the named external connection if it is not open yet.
func (ec *ExecutionContext) InitConnection(ctx context.Context, name string) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.closed {
		return errors.New("execution context is closed")
	}
	if _, exists := ec.Connections[name]; exists {
		return nil
	}
	config, ok := ec.configs[name]
	if !ok {
		return dependencyErrorf("unknown connection %q", name)
	}

	db, err := sql.Open(config.GetDriverName(), config.BuildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open connection %s: %w", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s: %w", name, err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ec.Connections[name] = db
	ec.logger.Debug().Str("connection", name).Str("id", config.GetConnectionID()).Msg("Initialized connection")
	return nil
}

// ConnectionConfig returns the configuration of a named connection.
func (ec *ExecutionContext) ConnectionConfig(name string) (models.DBConnectionConfig, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	config, ok := ec.configs[name]
	return config, ok
}

// GetConnection returns the named external connection, opening it if needed.
func (ec *ExecutionContext) GetConnection(ctx context.Context, name string) (*sql.DB, error) {
	ec.mu.RLock()
	db, exists := ec.Connections[name]
	ec.mu.RUnlock()
	if exists {
		return db, nil
	}

	if err := ec.InitConnection(ctx, name); err != nil {
		return nil, err
	}
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.Connections[name], nil
}

// Close releases the session store and every external connection.
func (ec *ExecutionContext) Close() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.closed {
		return nil
	}
	ec.closed = true

	var errs []error
	if ec.session != nil {
		if err := ec.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
		ec.session = nil
	}

	names := make([]string, 0, len(ec.Connections))
	for name := range ec.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ec.Connections[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", name, err))
		}
	}
	ec.logger.Debug().Int("connections", len(names)).Msg("Execution context closed")
	return errors.Join(errs...)
}
