package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/events"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/retry"
	"github.com/marcus/offsync/internal/syncclient"
)

// Trigger names what started a drain attempt.
type Trigger string

const (
	TriggerEnqueue Trigger = "enqueue"
	TriggerOnline  Trigger = "online"
	TriggerTimer   Trigger = "timer"
	TriggerStartup Trigger = "startup"
	TriggerManual  Trigger = "manual"
)

// Result summarises one drain pass.
type Result struct {
	Trigger    Trigger       `json:"trigger"`
	Attempted  int           `json:"attempted"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Conflicts  int           `json:"conflicts"`
	Abandoned  int           `json:"abandoned"`
	Duration   time.Duration `json:"duration"`
}

// SyncPendingData drains the queue now. It returns ErrOffline when the
// monitor is offline and ErrSyncInProgress when a drain is already running
// here or in another process sharing the store.
// On an empty queue it emits sync_completed with zero counts. Persistence
// failures during the pass are joined into the returned error; per-record
// delivery failures are not errors.
func (e *Engine) SyncPendingData(ctx context.Context) (Result, error) {
	return e.tryDrain(ctx, TriggerManual)
}

// trigger requests an automatic drain from the loop without blocking.
func (e *Engine) trigger(t Trigger) {
	select {
	case e.kick <- t:
	default:
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.kick:
			e.autoDrain(ctx, t)
		case <-ticker.C:
			e.autoDrain(ctx, TriggerTimer)
		}
	}
}

func (e *Engine) autoDrain(ctx context.Context, t Trigger) {
	res, err := e.tryDrain(ctx, t)
	switch {
	case errors.Is(err, ErrOffline), errors.Is(err, ErrSyncInProgress):
		e.logger.Debug("drain skipped", "trigger", t, "reason", err)
	case err != nil:
		e.logger.Warn("drain finished with errors", "trigger", t, "err", err)
	case res.Attempted > 0:
		e.logger.Debug("drain finished", "trigger", t, "successful", res.Successful, "failed", res.Failed)
	}
}

// tryDrain enters Draining if online and idle in this process and no other
// process holds the drain lock. Automatic triggers on an empty queue return
// without emitting anything.
func (e *Engine) tryDrain(ctx context.Context, t Trigger) (Result, error) {
	res := Result{Trigger: t}
	if !e.monitor.IsOnline() {
		return res, ErrOffline
	}
	if !e.drainMu.TryLock() {
		return res, ErrSyncInProgress
	}
	defer e.drainMu.Unlock()

	release, err := e.lockDrain(0)
	if err != nil {
		return res, err
	}
	defer release()

	// The store is shared with other processes that enqueue and drain.
	if err := e.queue.Load(); err != nil {
		return res, err
	}
	snapshot := e.queue.Snapshot()
	if len(snapshot) == 0 {
		if t == TriggerManual {
			e.notifier.Emit(events.Event{Name: events.SyncCompleted, Tenant: e.tenant, Time: e.now()})
		}
		return res, nil
	}

	e.syncing.Store(true)
	defer e.syncing.Store(false)

	return e.drain(ctx, t, snapshot)
}

// drain processes snapshot in order. Records enqueued after the snapshot was
// taken wait for the next pass.
func (e *Engine) drain(ctx context.Context, t Trigger, snapshot []*models.MutationRecord) (Result, error) {
	start := e.now()
	res := Result{Trigger: t}
	var errs []error

	e.logger.Info("sync started", "trigger", t, "pending", len(snapshot))

	for _, rec := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if !e.monitor.IsOnline() {
			e.logger.Info("network lost mid-drain, leaving remaining mutations queued")
			break
		}
		res.Attempted++
		if err := e.process(ctx, rec, &res); err != nil {
			errs = append(errs, err)
		}
	}

	finished := e.now()
	res.Duration = finished.Sub(start)

	meta := models.SyncMetadata{
		Tenant:       e.tenant,
		LastSyncTime: &finished,
		Successful:   res.Successful,
		Failed:       res.Failed,
	}
	e.metaMu.Lock()
	e.meta = meta
	e.metaMu.Unlock()
	if err := e.store.PutSyncMetadata(&meta); err != nil {
		errs = append(errs, err)
	}

	e.logger.Info("sync completed", "trigger", t, "successful", res.Successful, "failed", res.Failed,
		"conflicts", res.Conflicts, "abandoned", res.Abandoned, "duration", res.Duration)
	e.notifier.Emit(events.Event{
		Name:       events.SyncCompleted,
		Tenant:     e.tenant,
		Time:       finished,
		Successful: res.Successful,
		Failed:     res.Failed,
	})

	return res, errors.Join(errs...)
}

// process delivers one record and applies the outcome. The returned error is
// a persistence failure; delivery failures are counted in res.
func (e *Engine) process(ctx context.Context, rec *models.MutationRecord, res *Result) error {
	err := e.remote.Deliver(ctx, rec)
	if err == nil {
		res.Successful++
		e.history(rec, models.OutcomeSynced, "", nil)
		return e.queue.Remove(rec.ID)
	}
	if ctx.Err() != nil {
		// Shutting down; the attempt does not count against the record.
		res.Attempted--
		return nil
	}

	ce, ok := syncclient.IsConflict(err)
	if !ok {
		return e.fail(rec, err, res)
	}

	res.Conflicts++
	out, perr := e.resolver.Resolve(ctx, rec, ce.ServerData)
	if perr != nil {
		res.Failed++
		return perr
	}
	if !out.Handled {
		return e.fail(rec, out.Err, res)
	}

	res.Successful++
	e.history(rec, models.OutcomeConflict, out.Strategy, nil)
	if err := e.queue.Remove(rec.ID); err != nil {
		return err
	}
	if out.Strategy == conflict.Manual && out.Conflict != nil {
		e.logger.Info("conflict parked for manual resolution", "id", rec.ID, "conflict", out.Conflict.ID)
		e.notifier.Emit(events.Event{
			Name:   events.SyncFailed,
			Tenant: rec.Tenant,
			Time:   e.now(),
			Item:   rec,
			Err:    fmt.Errorf("%w: %s", ErrConflictParked, out.Conflict.ID),
		})
	}
	return nil
}

// fail applies the retry policy to a transient failure.
func (e *Engine) fail(rec *models.MutationRecord, cause error, res *Result) error {
	res.Failed++
	decision, exhausted := e.policy.Evaluate(rec, cause)
	if decision == retry.Retry {
		e.logger.Debug("mutation will be retried", "id", rec.ID, "retry", rec.RetryCount, "max", rec.MaxRetries, "err", cause)
		e.history(rec, models.OutcomeRetry, "", cause)
		return e.queue.Update(rec)
	}

	if err := e.queue.Remove(rec.ID); err != nil {
		// Still queued; it will be abandoned on a later pass.
		return err
	}
	res.Abandoned++
	e.logger.Warn("mutation abandoned", "id", rec.ID, "type", rec.ResourceType, "err", cause)
	e.history(rec, models.OutcomeAbandoned, "", cause)
	e.notifier.Emit(events.Event{
		Name:   events.SyncFailed,
		Tenant: rec.Tenant,
		Time:   e.now(),
		Item:   rec,
		Err:    exhausted,
	})
	return nil
}

func (e *Engine) history(rec *models.MutationRecord, outcome models.SyncOutcome, strategy conflict.Strategy, cause error) {
	entry := models.SyncHistoryEntry{
		MutationID:   rec.ID,
		ResourceType: rec.ResourceType,
		Action:       rec.Action,
		Tenant:       rec.Tenant,
		Outcome:      outcome,
		Strategy:     string(strategy),
		Timestamp:    e.now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := e.store.RecordSyncHistory(entry); err != nil {
		e.logger.Warn("record sync history", "id", rec.ID, "err", err)
	}
}
