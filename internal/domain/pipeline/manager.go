package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/StreamOS/backend/internal/engine"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/StreamOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/StreamOS/backend/internal/shared/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxPipelines      = 10
	DefaultStateQueryTimeout = time.Second
	DefaultBusPollTimeout    = 5 * time.Second
)

// Config bounds the registry and its timeouts.
type Config struct {
	MaxPipelines      int
	HistorySize       int
	StateQueryTimeout time.Duration
	BusPollTimeout    time.Duration
}

// DefaultConfig returns the registry defaults.
func DefaultConfig() Config {
	return Config{
		MaxPipelines:      DefaultMaxPipelines,
		HistorySize:       DefaultHistorySize,
		StateQueryTimeout: DefaultStateQueryTimeout,
		BusPollTimeout:    DefaultBusPollTimeout,
	}
}

// CreateOptions controls Create.
type CreateOptions struct {
	// ID is used instead of a generated identifier when set.
	ID string
	// Monitor starts a bus monitor for the new pipeline.
	Monitor bool
}

// Manager is the registry of live pipelines.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry // Protected by mu

	engine  engine.Engine
	cfg     Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewManager creates a pipeline manager backed by eng. Zero config fields take defaults.
func NewManager(eng engine.Engine, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MaxPipelines <= 0 {
		cfg.MaxPipelines = def.MaxPipelines
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.StateQueryTimeout <= 0 {
		cfg.StateQueryTimeout = def.StateQueryTimeout
	}
	if cfg.BusPollTimeout <= 0 {
		cfg.BusPollTimeout = def.BusPollTimeout
	}
	return &Manager{
		entries: make(map[string]*entry),
		engine:  eng,
		cfg:     cfg,
		logger:  logging.NewNop(),
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithLogger sets the logger used for lifecycle and bus events.
func (m *Manager) WithLogger(logger *logging.Logger) *Manager {
	if logger != nil {
		m.logger = logger.Named("pipeline")
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Create parses description into a new pipeline in the NULL state and registers it.
func (m *Manager) Create(ctx context.Context, description string, opts CreateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := m.create(description, opts)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordCreateFailure(Code(err))
		}
		m.logger.Warn("Pipeline creation rejected",
			zap.String("description", description),
			zap.Error(err))
		return "", err
	}
	return id, nil
}

func (m *Manager) create(description string, opts CreateOptions) (string, error) {
	if err := utils.ValidateID(opts.ID, "pipeline id", false); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if err := engine.Initialize(m.engine); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	// Cheap pre-check so a full registry does not pay for a parse.
	m.mu.RLock()
	err := m.admitLocked(opts.ID)
	m.mu.RUnlock()
	if err != nil {
		return "", err
	}

	el, err := m.parse(description)
	if err != nil {
		return "", err
	}
	handle, ok := el.(engine.Pipeline)
	if !ok {
		_ = el.Close()
		return "", fmt.Errorf("%w: %q built element %s", ErrGraphType, description, el.Name())
	}

	id := opts.ID
	if id == "" {
		id = "pipeline-" + uuid.New().String()
	}
	e := newEntry(id, description, handle, m.cfg.HistorySize)

	m.mu.Lock()
	if err := m.admitLocked(opts.ID); err != nil {
		m.mu.Unlock()
		_ = e.release()
		return "", err
	}
	m.entries[id] = e
	count := len(m.entries)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncPipelinesCreated()
		m.metrics.SetPipelinesActive(count)
	}
	m.logger.Info("Pipeline created",
		logging.PipelineID(id),
		zap.String("description", description),
		zap.Int("active", count))

	if opts.Monitor {
		if err := m.startMonitor(e); err != nil {
			m.logger.Warn("Failed to start bus monitor", logging.PipelineID(id), zap.Error(err))
		}
	}
	return id, nil
}

// admitLocked checks id uniqueness, then capacity. Must be called with mu held.
func (m *Manager) admitLocked(id string) error {
	if id != "" {
		if _, exists := m.entries[id]; exists {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
	}
	if len(m.entries) >= m.cfg.MaxPipelines {
		return fmt.Errorf("%w (%d)", ErrCapacityExceeded, m.cfg.MaxPipelines)
	}
	return nil
}

// lookup returns the live entry for id.
func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Get retrieves a snapshot of a pipeline by ID
func (m *Manager) Get(id string) (Info, bool) {
	e, err := m.lookup(id)
	if err != nil {
		return Info{}, false
	}
	return e.snapshot(), true
}

// List returns snapshots of all pipelines, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.snapshot())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of registered pipelines.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Remove unregisters a pipeline, stops its monitor and drives its handle to NULL.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	count := len(m.entries)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	err := e.release()
	if m.metrics != nil {
		m.metrics.SetPipelinesActive(count)
	}
	if err != nil {
		m.logger.Warn("Pipeline release reported an error", logging.PipelineID(id), zap.Error(err))
	}
	m.logger.Info("Pipeline removed", logging.PipelineID(id), zap.Int("active", count))
	return nil
}

// Stop requests NULL and removes the pipeline. When the engine rejects the
// transition the pipeline is kept and the error returned, unless force is set,
// in which case removal proceeds and release drives the handle to NULL anyway.
func (m *Manager) Stop(ctx context.Context, id string, force bool) error {
	if _, err := m.SetState(ctx, id, engine.StateNull); err != nil {
		if !force || errors.Is(err, ErrNotFound) {
			return err
		}
		m.logger.Debug("Stop transition failed, forcing removal", logging.PipelineID(id), zap.Error(err))
	}
	return m.Remove(id)
}

// Status reports the snapshot, live engine state and the newest limit history records.
func (m *Manager) Status(id string, limit int) (Status, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	st := Status{Info: e.snapshotLocked()}
	st.CurrentState, st.PendingState = e.handle.QueryState(0)
	if pos, ok := e.handle.QueryPosition(); ok {
		st.Position = &pos
	}
	if dur, ok := e.handle.QueryDuration(); ok {
		st.Duration = &dur
	}
	st.Messages = e.history.Recent(limit)
	return st, nil
}

// Messages returns retained history records newer than since.
func (m *Manager) Messages(id string, since uint64) ([]Message, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.history.Since(since), nil
}

// Close removes every pipeline. Used at process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range entries {
		if err := e.release(); err != nil {
			m.logger.Warn("Pipeline release reported an error", logging.PipelineID(id), zap.Error(err))
		}
	}
	if m.metrics != nil {
		m.metrics.SetPipelinesActive(0)
	}
	if len(entries) > 0 {
		m.logger.Info("Released all pipelines", zap.Int("count", len(entries)))
	}
}
