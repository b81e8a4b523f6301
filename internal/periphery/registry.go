package periphery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBackupPath is the snapshot file written before every apply.
const DefaultBackupPath = "backup.config"

// historyTimeout bounds a single history write.
const historyTimeout = 5 * time.Second

// Registry owns the set of peripheries and applies parameter files to
// them as a transaction: snapshot, apply, roll back on failure.
//
// Thread Safety:
//   - ReadConfig, WriteConfig, Register and the bulk lifecycle calls are
//     serialised by a mutex.
//   - State may be called from any goroutine.
type Registry struct {
	mu          sync.Mutex
	peripheries map[string]Periphery
	initialized []Periphery
	backupPath  string

	state   atomic.Int32
	onState func(State)

	history HistoryRecorder
	logger  Logger
}

// NewRegistry creates an empty registry snapshotting to backupPath
// (DefaultBackupPath if empty).
func NewRegistry(backupPath string) *Registry {
	if backupPath == "" {
		backupPath = DefaultBackupPath
	}
	return &Registry{
		peripheries: make(map[string]Periphery),
		backupPath:  backupPath,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for registry operations.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetHistory sets where apply outcomes are recorded. nil disables history.
func (r *Registry) SetHistory(h HistoryRecorder) {
	r.mu.Lock()
	r.history = h
	r.mu.Unlock()
}

// SetStateObserver registers fn to be called on every state change.
// fn runs on the goroutine applying the config and must not call back
// into the registry.
func (r *Registry) SetStateObserver(fn func(State)) {
	r.mu.Lock()
	r.onState = fn
	r.mu.Unlock()
}

// BackupPath returns the snapshot path.
func (r *Registry) BackupPath() string { return r.backupPath }

// State returns the current configuration state.
func (r *Registry) State() State { return State(r.state.Load()) }

func (r *Registry) setState(s State) {
	if State(r.state.Swap(int32(s))) == s {
		return
	}
	r.logger.Debug("registry state changed", "state", s.String())
	if r.onState != nil {
		r.onState(s)
	}
}

// Register adds p under p.Name().
func (r *Registry) Register(p Periphery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.peripheries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.peripheries[name] = p
	r.logger.Debug("periphery registered", "periphery", name)
	return nil
}

// Get returns the periphery registered under name.
func (r *Registry) Get(name string) (Periphery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peripheries[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedNames()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.peripheries))
	for name := range r.peripheries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitializeAll initialises every periphery in name order. On the
// first failure the peripheries already initialised are shut down in
// reverse order and ErrInitialization is returned.
func (r *Registry) InitializeAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.sortedNames() {
		if slices.ContainsFunc(r.initialized, func(p Periphery) bool { return p.Name() == name }) {
			continue
		}
		p := r.peripheries[name]
		if err := p.Initialize(ctx); err != nil {
			r.logger.Error("periphery initialization failed", "periphery", name, "error", err)
			shutdownErr := r.shutdownInitialized(ctx)
			return errors.Join(fmt.Errorf("%w: %s: %w", ErrInitialization, name, err), shutdownErr)
		}
		r.initialized = append(r.initialized, p)
		r.logger.Info("periphery initialized", "periphery", name)
	}
	return nil
}

// ShutdownAll shuts down every initialised periphery in reverse
// initialisation order. All are attempted; errors are joined.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdownInitialized(ctx)
}

func (r *Registry) shutdownInitialized(ctx context.Context) error {
	var errs []error
	for i := len(r.initialized) - 1; i >= 0; i-- {
		p := r.initialized[i]
		if err := p.Shutdown(ctx); err != nil {
			r.logger.Error("periphery shutdown failed", "periphery", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("shutting down %s: %w", p.Name(), err))
			continue
		}
		r.logger.Info("periphery shut down", "periphery", p.Name())
	}
	r.initialized = nil
	return errors.Join(errs...)
}

// WriteConfig writes every parameter of every periphery to path, sorted
// by periphery then parameter name. No periphery is modified.
func (r *Registry) WriteConfig(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeConfig(path)
}

func (r *Registry) writeConfig(path string) error {
	var entries []Entry
	for name, p := range r.peripheries {
		for param, value := range p.Parameters() {
			entries = append(entries, Entry{Periphery: name, Parameter: param, Value: value})
		}
	}
	SortEntries(entries)

	data, err := EncodeEntries(entries)
	if err != nil {
		r.logger.Error("cannot encode parameters", "path", path, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrConfigWrite, path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		r.logger.Error("cannot write parameters", "path", path, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrConfigWrite, path, err)
	}
	r.logger.Debug("parameters written", "path", path, "count", len(entries))
	return nil
}

// ReadConfig applies the parameter file at path.
//
// Unless path is the backup path, the current parameters are first
// written to the backup path. Triples naming an unregistered periphery
// or an unknown parameter are skipped. If any parameter is rejected the
// backup is re-applied once and ErrPartialApply is returned.
//
// Returns:
//   - ErrConfigRead: path unreadable or malformed; nothing changed
//   - ErrConfigWrite: backup snapshot failed; nothing changed
//   - ErrPartialApply: apply failed and was rolled back
//   - ErrInconsistentState: the backup itself failed to apply (ErrNoBackup
//     when it was missing); parameters are in an unknown state
func (r *Registry) ReadConfig(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &ApplyRecord{ConfigPath: path, StartedAt: time.Now()}
	outcome, err := r.readConfig(path)
	rec.FinishedAt = time.Now()
	rec.Outcome = outcome
	rec.State = r.State()
	if err != nil {
		rec.Error = err.Error()
	}
	r.recordApply(ctx, rec)
	return err
}

func (r *Registry) readConfig(path string) (Outcome, error) {
	entries, err := LoadEntries(path)
	if err != nil {
		r.logger.Error("cannot read parameter file", "path", path, "error", err)
		return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrConfigRead, path, err)
	}

	isBackup := r.isBackupPath(path)
	if !isBackup {
		if err := r.writeConfig(r.backupPath); err != nil {
			return OutcomeFailed, err
		}
	}

	r.setState(StateApplying)
	applyErr := r.apply(entries)
	if applyErr == nil {
		r.setState(StateIdle)
		r.logger.Info("parameters applied", "path", path, "count", len(entries))
		return OutcomeApplied, nil
	}

	if isBackup {
		r.setState(StateInconsistent)
		r.logger.Error("not able to return to backup parameters, system is in unknown state",
			"path", path, "error", applyErr)
		return OutcomeInconsistent, fmt.Errorf("%w: %s: %w", ErrInconsistentState, path, applyErr)
	}

	r.setState(StateRolledBack)
	r.logger.Warn("one or more parameters were not set, returning to backup parameters",
		"path", path, "error", applyErr)

	if err := r.rollback(); err != nil {
		r.setState(StateInconsistent)
		r.logger.Error("rollback failed, system is in unknown state", "backup", r.backupPath, "error", err)
		return OutcomeInconsistent, errors.Join(err, applyErr)
	}

	r.setState(StateIdle)
	r.logger.Info("parameters rolled back", "backup", r.backupPath)
	return OutcomeRolledBack, fmt.Errorf("%w: %s: %w", ErrPartialApply, path, applyErr)
}

// rollback re-applies the backup snapshot. It never recurses.
func (r *Registry) rollback() error {
	entries, err := LoadEntries(r.backupPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoBackup, r.backupPath)
	}
	if err != nil {
		return fmt.Errorf("%w: reading backup %s: %w", ErrInconsistentState, r.backupPath, err)
	}
	if err := r.apply(entries); err != nil {
		return fmt.Errorf("%w: applying backup %s: %w", ErrInconsistentState, r.backupPath, err)
	}
	return nil
}

// apply sets entries periphery by periphery, in the order each periphery
// first appears in the file, and stops at the first rejection. A
// BatchSetter receives all of its entries at once; other peripheries get
// them one at a time in file order.
func (r *Registry) apply(entries []Entry) error {
	var order []string
	grouped := make(map[string][]Entry)
	for _, e := range entries {
		p, ok := r.peripheries[e.Periphery]
		if !ok {
			r.logger.Debug("skipping unknown periphery", "periphery", e.Periphery, "parameter", e.Parameter)
			continue
		}
		if _, ok := p.Parameters()[e.Parameter]; !ok {
			r.logger.Debug("skipping unknown parameter", "periphery", e.Periphery, "parameter", e.Parameter)
			continue
		}
		if _, seen := grouped[e.Periphery]; !seen {
			order = append(order, e.Periphery)
		}
		grouped[e.Periphery] = append(grouped[e.Periphery], e)
	}

	for _, name := range order {
		if err := r.applyTo(r.peripheries[name], grouped[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) applyTo(p Periphery, entries []Entry) error {
	if bs, ok := p.(BatchSetter); ok {
		params := make(map[string]float64, len(entries))
		for _, e := range entries {
			params[e.Parameter] = e.Value
		}
		if err := bs.SetParameters(params); err != nil {
			r.logger.Warn("parameters not set", "periphery", p.Name(), "count", len(params), "error", err)
			return fmt.Errorf("setting %s: %w", p.Name(), err)
		}
		return nil
	}

	for _, e := range entries {
		if err := p.SetParameter(e.Parameter, e.Value); err != nil {
			r.logger.Warn("parameter not set",
				"periphery", e.Periphery, "parameter", e.Parameter, "value", e.Value, "error", err)
			return fmt.Errorf("setting %s.%s: %w", e.Periphery, e.Parameter, err)
		}
	}
	return nil
}

func (r *Registry) isBackupPath(path string) bool {
	return samePath(path, r.backupPath)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func (r *Registry) recordApply(ctx context.Context, rec *ApplyRecord) {
	if r.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := r.history.RecordApply(ctx, rec); err != nil {
		r.logger.Warn("failed to record apply history", "path", rec.ConfigPath, "error", err)
	}
}
