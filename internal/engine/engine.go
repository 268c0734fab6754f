// Package engine drives offline mutation sync: it accepts mutations into a
// durable queue and drains them against the remote API whenever the network
// monitor reports connectivity.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/events"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/netmon"
	"github.com/marcus/offsync/internal/queue"
	"github.com/marcus/offsync/internal/retry"
)

// DefaultSyncInterval is the periodic drain interval.
const DefaultSyncInterval = 30 * time.Second

var (
	// ErrOffline is returned by a manual sync while the monitor reports offline.
	ErrOffline = errors.New("offline")
	// ErrSyncInProgress is returned by a manual sync while another drain runs.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrAlreadyStarted is returned by Start on a running engine.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrConflictResolved is returned when resolving a settled conflict.
	ErrConflictResolved = errors.New("conflict already resolved")
	// ErrConflictParked is carried by sync_failed for mutations handed to manual resolution.
	ErrConflictParked = errors.New("conflict awaiting manual resolution")
	// ErrMutationExpired is carried by sync_failed for mutations purged by Cleanup.
	ErrMutationExpired = errors.New("mutation expired before delivery")
)

// drainLockWait bounds how long Cleanup waits for another process's drain.
const drainLockWait = 5 * time.Second

// Store is the persistence the engine needs. *db.DB satisfies it.
type Store interface {
	queue.Store
	conflict.Recorder
	GetConflict(id string) (*models.ConflictRecord, error)
	ListConflicts(f db.ConflictFilter) ([]*models.ConflictRecord, error)
	ResolveConflict(id string, resolution models.ConflictResolution, at time.Time) error
	ReopenConflict(id string) error
	DeleteResolvedConflictsBefore(cutoff time.Time) (int64, error)
	GetSyncMetadata(tenant string) (*models.SyncMetadata, error)
	PutSyncMetadata(m *models.SyncMetadata) error
	DeleteSyncMetadataBefore(cutoff time.Time, keepTenant string) (int64, error)
	RecordSyncHistory(entries ...models.SyncHistoryEntry) error
	GetSyncHistoryTail(limit int) ([]models.SyncHistoryEntry, error)
	DeleteSyncHistoryBefore(cutoff time.Time) (int64, error)
}

// DrainLocker is implemented by stores shared between processes. Holding the
// lock gives one process at a time the right to drain. *db.DB satisfies it;
// contention must wrap db.ErrLockTimeout.
type DrainLocker interface {
	LockDrain(wait time.Duration) (release func(), err error)
}

// Remote delivers mutations. *syncclient.Client satisfies it. Deliver must
// report a server conflict as *syncclient.ConflictError.
type Remote interface {
	Deliver(ctx context.Context, rec *models.MutationRecord) error
	conflict.Submitter
}

// Config wires an Engine. Store and Remote are required.
type Config struct {
	Store   Store
	Remote  Remote
	Monitor netmon.Monitor // default: always online
	// Tenant scopes sync_completed events, metadata and default enqueues.
	Tenant       string
	SyncInterval time.Duration // default 30s
	// MaxRetries is applied to enqueues that leave Options.MaxRetries unset.
	MaxRetries int
	Notifier   *events.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Options tune a single AddToQueue call.
type Options struct {
	Priority   models.Priority // default medium
	MaxRetries int             // 0 uses the engine default
	Tenant     string          // default: engine tenant
}

// Status is a point-in-time view of the engine.
type Status struct {
	IsOnline       bool       `json:"is_online"`
	IsSyncing      bool       `json:"is_syncing"`
	PendingCount   int        `json:"pending_count"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	FailedCount    int        `json:"failed_count"`
	Tenant         string     `json:"tenant"`
	LastSuccessful int        `json:"last_successful"`
	LastFailed     int        `json:"last_failed"`
}

// Engine is safe for concurrent use.
type Engine struct {
	store    Store
	remote   Remote
	monitor  netmon.Monitor
	queue    *queue.Queue
	resolver *conflict.Resolver
	notifier *events.Notifier
	policy   retry.Policy
	logger   *slog.Logger
	now      func() time.Time

	tenant     string
	interval   time.Duration
	maxRetries int

	// drainMu is held for the whole of a drain; TryLock collapses triggers.
	drainMu sync.Mutex
	syncing atomic.Bool
	kick    chan Trigger

	metaMu sync.RWMutex
	meta   models.SyncMetadata

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	unsub  func()
}

// New builds an engine and loads the persisted queue and sync metadata.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Remote == nil {
		return nil, errors.New("engine: remote is required")
	}
	if cfg.Monitor == nil {
		cfg.Monitor = netmon.NewManual(true)
	}
	if cfg.Tenant == "" {
		cfg.Tenant = models.DefaultTenant
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = events.NewNotifier(cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		store:      cfg.Store,
		remote:     cfg.Remote,
		monitor:    cfg.Monitor,
		queue:      queue.New(cfg.Store),
		resolver:   conflict.NewResolver(cfg.Remote, cfg.Store, cfg.Now),
		notifier:   cfg.Notifier,
		policy:     retry.Policy{DefaultMaxRetries: cfg.MaxRetries},
		logger:     cfg.Logger,
		now:        cfg.Now,
		tenant:     cfg.Tenant,
		interval:   cfg.SyncInterval,
		maxRetries: cfg.MaxRetries,
		kick:       make(chan Trigger, 1),
	}

	if err := e.queue.Load(); err != nil {
		return nil, err
	}
	meta, err := e.store.GetSyncMetadata(e.tenant)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		e.meta = *meta
	} else {
		e.meta = models.SyncMetadata{Tenant: e.tenant}
	}

	e.logger.Debug("engine loaded", "tenant", e.tenant, "pending", e.queue.Len())
	return e, nil
}

// Tenant returns the engine's tenant.
func (e *Engine) Tenant() string {
	return e.tenant
}

// AddToQueue durably enqueues a mutation and returns its id. payload may be
// a json.RawMessage, []byte of JSON, or any value encoding/json accepts.
// If online and idle an immediate drain is scheduled.
func (e *Engine) AddToQueue(rt models.ResourceType, action models.Action, payload any, opts Options) (string, error) {
	if !rt.IsValid() {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidResourceType, rt)
	}
	if !action.IsValid() {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidAction, action)
	}
	if opts.Priority == "" {
		opts.Priority = models.PriorityMedium
	}
	if !opts.Priority.IsValid() {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidPriority, opts.Priority)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = e.maxRetries
	}
	if opts.Tenant == "" {
		opts.Tenant = e.tenant
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	now := e.now()
	rec := &models.MutationRecord{
		ID:           queue.NewMutationID(rt, action, now),
		ResourceType: rt,
		Action:       action,
		Payload:      raw,
		CreatedAt:    now,
		Tenant:       opts.Tenant,
		MaxRetries:   opts.MaxRetries,
		Priority:     opts.Priority,
	}
	if err := e.queue.Enqueue(rec); err != nil {
		return "", fmt.Errorf("add to queue: %w", err)
	}

	e.logger.Debug("mutation queued", "id", rec.ID, "type", rt, "action", action, "priority", rec.Priority)

	if e.monitor.IsOnline() && !e.syncing.Load() {
		e.trigger(TriggerEnqueue)
	}
	return rec.ID, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// SetConflictResolver sets the conflict strategy for a resource type. merge
// is used only by conflict.Merge; nil degrades merge to server-wins.
func (e *Engine) SetConflictResolver(rt models.ResourceType, s conflict.Strategy, merge conflict.MergeFunc) error {
	return e.resolver.Set(rt, s, merge)
}

// ConflictStrategies returns the effective strategy of every resource type.
func (e *Engine) ConflictStrategies() map[models.ResourceType]conflict.Strategy {
	return e.resolver.Strategies()
}

// OnSync registers cb for name events of the engine's tenant.
func (e *Engine) OnSync(name events.Name, cb events.Callback) (unsubscribe func()) {
	return e.notifier.On(e.tenant, name, cb)
}

// OnSyncTenant registers cb for name events of tenant (events.AllTenants for all).
func (e *Engine) OnSyncTenant(tenant string, name events.Name, cb events.Callback) (unsubscribe func()) {
	return e.notifier.On(tenant, name, cb)
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	e.refresh()
	e.metaMu.RLock()
	meta := e.meta
	e.metaMu.RUnlock()

	return Status{
		IsOnline:       e.monitor.IsOnline(),
		IsSyncing:      e.syncing.Load(),
		PendingCount:   e.queue.Len(),
		LastSyncTime:   meta.LastSyncTime,
		FailedCount:    e.queue.FailingCount(),
		Tenant:         e.tenant,
		LastSuccessful: meta.Successful,
		LastFailed:     meta.Failed,
	}
}

// Pending returns copies of the queued mutations in drain order.
func (e *Engine) Pending() []*models.MutationRecord {
	e.refresh()
	return e.queue.Snapshot()
}

// refresh reloads the queue from the store when no drain is running, so
// mutations added or drained by other processes show up.
func (e *Engine) refresh() {
	if !e.drainMu.TryLock() {
		return
	}
	defer e.drainMu.Unlock()
	if err := e.queue.Load(); err != nil {
		e.logger.Warn("reload queue", "err", err)
	}
}

// lockDrain takes the store's cross-process drain lock if it has one.
// Contention is reported as ErrSyncInProgress.
func (e *Engine) lockDrain(wait time.Duration) (release func(), err error) {
	l, ok := e.store.(DrainLocker)
	if !ok {
		return func() {}, nil
	}
	release, err = l.LockDrain(wait)
	if errors.Is(err, db.ErrLockTimeout) {
		return nil, fmt.Errorf("%w: %v", ErrSyncInProgress, err)
	}
	return release, err
}

// History returns the most recent sync history entries, oldest first.
func (e *Engine) History(limit int) ([]models.SyncHistoryEntry, error) {
	return e.store.GetSyncHistoryTail(limit)
}

// Start runs the sync loop until ctx is done or Stop is called, and
// subscribes to connectivity transitions.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.unsub = e.monitor.Subscribe(e.onConnectivity)

	go e.loop(ctx, e.done)

	if e.monitor.IsOnline() {
		e.trigger(TriggerStartup)
	}
	e.logger.Info("sync engine started", "tenant", e.tenant, "interval", e.interval)
	return nil
}

// Stop ends the loop and waits for an in-flight drain to finish.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done, unsub := e.cancel, e.done, e.unsub
	e.cancel, e.done, e.unsub = nil, nil, nil
	e.runMu.Unlock()

	if cancel == nil {
		return
	}
	unsub()
	cancel()
	<-done
	e.logger.Info("sync engine stopped", "tenant", e.tenant)
}

func (e *Engine) onConnectivity(online bool) {
	if online {
		e.logger.Info("network online", "tenant", e.tenant)
		e.notifier.Emit(events.Event{Name: events.Online, Tenant: e.tenant, Time: e.now()})
		e.trigger(TriggerOnline)
		return
	}
	e.logger.Info("network offline", "tenant", e.tenant, "pending", e.queue.Len())
	e.notifier.Emit(events.Event{Name: events.Offline, Tenant: e.tenant, Time: e.now()})
}
