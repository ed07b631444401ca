// Package syncengine orchestrates the optimistic-update/outbox/retry
// pipeline: progress deltas are applied optimistically, delivered to the
// server of record, and reconciled back; failures are queued durably and
// retried with linear backoff.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/ventilearn/ventilearn/internal/curriculum"
	"github.com/ventilearn/ventilearn/internal/outbox"
	"github.com/ventilearn/ventilearn/internal/progress"
	"github.com/ventilearn/ventilearn/internal/syncapi"
)

//go:generate mockgen -source=engine.go -destination=../mocks/syncengine/mock_api.go -package=mock_syncengine API

// API is the network boundary the engine drives.
type API interface {
	SendSingle(ctx context.Context, update syncapi.ProgressUpdate) (syncapi.UpdateResponse, error)
	SendBulk(ctx context.Context, updates []syncapi.ProgressUpdate) (syncapi.BulkResponse, error)
}

// Delta is a progress-reporting event from the caller. ModuleID may be
// empty when the lesson ID alone is resolvable through the curriculum.
type Delta struct {
	LessonID       string
	ModuleID       string
	Progress       float64
	TimeSpentDelta int
	Score          *float64
	Metadata       map[string]string
}

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
)

// Engine wires the progress store, the outbox and the sync client together.
// It is scoped to one learner session.
type Engine struct {
	graph *curriculum.Graph
	store *progress.Store
	queue outbox.Store
	api   API
	sched *scheduler

	maxAttempts int
	retryDelay  time.Duration

	mu      sync.Mutex
	status  Status
	lastErr error
	online  bool

	now        func() time.Time
	newEventID func() string
}

// New creates an Engine. It starts online with an idle status.
func New(graph *curriculum.Graph, store *progress.Store, queue outbox.Store, api API) *Engine {
	return &Engine{
		graph:       graph,
		store:       store,
		queue:       queue,
		api:         api,
		sched:       newScheduler(),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		status:      StatusIdle,
		online:      true,
		now:         time.Now,
		newEventID:  func() string { return uuid.NewString() },
	}
}

// Close cancels all planned retries.
func (e *Engine) Close() {
	e.sched.stop()
}

// Status returns the aggregate sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastError returns the most recently surfaced sync error, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// SetOnline records the connectivity signal. While offline, reports skip
// the network and go straight to the outbox.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	e.online = online
	e.mu.Unlock()
}

// Online reports the last known connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// setStatus commits a status transition. StatusSaved is downgraded while
// pending events remain so the status never contradicts the outbox.
func (e *Engine) setStatus(status Status, err error) {
	if status == StatusSaved && len(e.queue.ListPending()) > 0 {
		status = StatusOfflineQueued
	}
	e.mu.Lock()
	e.status = status
	e.lastErr = err
	e.mu.Unlock()
}

// Report applies a progress delta optimistically and drives it toward the
// server of record. The returned record reflects the local state after the
// call: optimistic when the write was queued, server-confirmed on success.
//
// Only validation failures and non-recoverable client errors are returned;
// transient failures queue the event and resolve to nil.
func (e *Engine) Report(ctx context.Context, delta Delta) (progress.LessonProgress, error) {
	if delta.LessonID == "" {
		return progress.LessonProgress{}, &syncapi.ValidationError{Field: "lessonId", Reason: "is required"}
	}
	moduleID := delta.ModuleID
	if moduleID == "" {
		resolved, ok := e.graph.ModuleOfLesson(delta.LessonID)
		if !ok {
			return progress.LessonProgress{}, &syncapi.ValidationError{Field: "moduleId", Reason: "is required and could not be resolved"}
		}
		moduleID = resolved
	}

	key := lessonKey{moduleID: moduleID, lessonID: delta.LessonID}
	// A newer update supersedes any planned retry for this lesson so a
	// stale resend cannot race it.
	e.sched.cancel(key)

	optimistic := e.store.ApplyOptimistic(moduleID, delta.LessonID, progress.Delta{
		Progress:       delta.Progress,
		TimeSpentDelta: delta.TimeSpentDelta,
		Score:          delta.Score,
		Metadata:       delta.Metadata,
		At:             e.now(),
	})

	event := outbox.Event{
		ClientEventID:   e.newEventID(),
		ModuleID:        moduleID,
		LessonID:        delta.LessonID,
		Progress:        optimistic.Progress,
		Completed:       optimistic.Completed,
		TimeSpentDelta:  delta.TimeSpentDelta,
		Score:           delta.Score,
		Metadata:        delta.Metadata,
		ClientUpdatedAt: optimistic.ClientUpdatedAt,
	}

	// The event goes to the outbox before any network attempt, coalescing
	// with a queued event for the same lesson. What is then queued is the
	// authoritative intent: delivering it and confirming by its id settles
	// the lesson's queue slot no matter how many reports were folded in.
	e.queue.Enqueue(event)
	queued := e.pendingFor(moduleID, delta.LessonID)
	if queued == nil {
		queued = &event
	}

	if !e.Online() {
		e.setStatus(StatusOfflineQueued, nil)
		return optimistic, nil
	}

	e.setStatus(StatusSaving, nil)
	return e.deliver(ctx, *queued, optimistic)
}

// pendingFor returns the queued unconfirmed event for a lesson, if any.
func (e *Engine) pendingFor(moduleID, lessonID string) *outbox.Event {
	for _, pending := range e.queue.ListPending() {
		if pending.ModuleID == moduleID && pending.LessonID == lessonID {
			queued := pending
			return &queued
		}
	}
	return nil
}

// deliver sends one event and routes its outcome through the error
// taxonomy.
func (e *Engine) deliver(ctx context.Context, event outbox.Event, optimistic progress.LessonProgress) (progress.LessonProgress, error) {
	result, err := e.api.SendSingle(ctx, updateFromEvent(event))
	if err == nil {
		confirmed := e.confirm(event, result.LessonProgress)
		e.setStatus(StatusSaved, nil)
		return confirmed, nil
	}

	var notFoundErr *syncapi.NotFoundError
	var serverErr *syncapi.RecoverableServerError
	var clientErr *syncapi.ClientError
	var validationErr *syncapi.ValidationError

	switch {
	case errors.As(err, &validationErr):
		// Never retried: the caller must fix the request.
		e.queue.DequeueConfirmed(event.ClientEventID)
		e.setStatus(StatusError, err)
		return progress.LessonProgress{}, err

	case errors.As(err, &notFoundErr):
		// Content provisioning may be lagging server-side. Keep the event
		// queued and the optimistic state; not a user-facing failure.
		slog.Default().Info("progress sync: lesson not yet provisioned, queued for retry",
			"moduleID", event.ModuleID, "lessonID", event.LessonID)
		e.planRetry(event, nil)
		return optimistic, nil

	case errors.As(err, &serverErr):
		e.planRetry(event, err)
		return optimistic, nil

	case errors.As(err, &clientErr):
		// Non-recoverable: the optimistic update must not be trusted.
		e.store.Revert(event.ModuleID, event.LessonID)
		e.queue.DequeueConfirmed(event.ClientEventID)
		e.setStatus(StatusError, err)
		return progress.LessonProgress{}, err

	default:
		// NetworkError and anything unclassified: request never reached
		// the server.
		e.planRetry(event, nil)
		return optimistic, nil
	}
}

// planRetry plans the next attempt for an already-queued event. A non-nil
// surfaced error marks the status as error without reverting anything.
func (e *Engine) planRetry(event outbox.Event, surfaced error) {
	if surfaced != nil {
		e.setStatus(StatusError, surfaced)
	} else {
		e.setStatus(StatusOfflineQueued, nil)
	}
	e.scheduleRetry(event.ModuleID, event.LessonID, 1)
}

// scheduleRetry plans attempt n for a lesson with linear backoff
// (1s, 2s, 3s). Past the attempt budget the event stays in the outbox for
// the next Flush.
func (e *Engine) scheduleRetry(moduleID, lessonID string, attempt int) {
	if attempt > e.maxAttempts {
		return
	}
	key := lessonKey{moduleID: moduleID, lessonID: lessonID}
	e.sched.schedule(key, time.Duration(attempt)*e.retryDelay, func() {
		e.retryLesson(moduleID, lessonID, attempt)
	})
}

// retryLesson resends the currently queued event for a lesson, if one is
// still pending. Coalescing may have replaced the original event; whatever
// is queued now is the authoritative intent.
func (e *Engine) retryLesson(moduleID, lessonID string, attempt int) {
	if !e.Online() {
		return
	}

	var event *outbox.Event
	for _, pending := range e.queue.ListPending() {
		if pending.ModuleID == moduleID && pending.LessonID == lessonID {
			queued := pending
			event = &queued
			break
		}
	}
	if event == nil {
		return
	}

	result, err := e.api.SendSingle(context.Background(), updateFromEvent(*event))
	if err == nil {
		e.confirm(*event, result.LessonProgress)
		e.setStatus(StatusSaved, nil)
		return
	}

	var clientErr *syncapi.ClientError
	if errors.As(err, &clientErr) {
		// The non-recoverable-error decision for a queued event: revert
		// and drop it, surfacing the failure through the status.
		e.store.Revert(moduleID, lessonID)
		e.queue.DequeueConfirmed(event.ClientEventID)
		e.setStatus(StatusError, err)
		return
	}

	slog.Default().Debug("progress sync: retry attempt failed",
		"moduleID", moduleID, "lessonID", lessonID, "attempt", attempt, "error", err)
	e.scheduleRetry(moduleID, lessonID, attempt+1)
}

// confirm merges server truth into the store and settles the outbox record.
func (e *Engine) confirm(event outbox.Event, record progress.LessonProgress) progress.LessonProgress {
	confirmed := e.store.ApplyConfirmed(event.ModuleID, event.LessonID, record)
	e.queue.MarkConfirmed(event.ClientEventID, outbox.ServerResult{
		ServerUpdatedAt: record.ServerUpdatedAt,
		Merged:          true,
	})
	e.queue.DequeueConfirmed(event.ClientEventID)
	return confirmed
}

// Flush drains the outbox through one bulk round trip, retried with linear
// backoff. Used after reconnection and by the sync CLI.
func (e *Engine) Flush(ctx context.Context) error {
	pending := e.queue.ListPending()
	if len(pending) == 0 {
		e.setStatus(StatusSaved, nil)
		return nil
	}

	e.setStatus(StatusSaving, nil)
	updates := make([]syncapi.ProgressUpdate, len(pending))
	for i, event := range pending {
		updates[i] = updateFromEvent(event)
	}

	var result syncapi.BulkResponse
	err := retry.Do(
		func() error {
			response, err := e.api.SendBulk(ctx, updates)
			if err != nil {
				if !syncapi.IsRecoverable(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			result = response
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.maxAttempts)),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return time.Duration(n+1) * e.retryDelay
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if syncapi.IsRecoverable(err) {
			e.setStatus(StatusOfflineQueued, nil)
		} else {
			e.setStatus(StatusError, err)
		}
		return fmt.Errorf("api.SendBulk() > %w", err)
	}

	records := make(map[string]progress.LessonProgress, len(result.Records))
	for _, record := range result.Records {
		records[record.LessonID] = record
	}

	for _, event := range pending {
		// merged:false means the server kept its own newer record; either
		// way the server arbitrated and its record is authoritative.
		if record, ok := records[event.LessonID]; ok {
			e.store.ApplyConfirmed(event.ModuleID, event.LessonID, record)
		}
		e.queue.MarkConfirmed(event.ClientEventID, outbox.ServerResult{
			ServerUpdatedAt: serverUpdatedAt(records, event.LessonID),
			Merged:          mergedFor(result.Merged, event.LessonID),
		})
		e.queue.DequeueConfirmed(event.ClientEventID)
		e.sched.cancel(lessonKey{moduleID: event.ModuleID, lessonID: event.LessonID})
	}

	e.setStatus(StatusSaved, nil)
	return nil
}

func updateFromEvent(event outbox.Event) syncapi.ProgressUpdate {
	return syncapi.ProgressUpdate{
		ClientEventID:   event.ClientEventID,
		ModuleID:        event.ModuleID,
		LessonID:        event.LessonID,
		Progress:        event.Progress,
		IsCompleted:     event.Completed,
		TimeSpentDelta:  event.TimeSpentDelta,
		Score:           event.Score,
		Metadata:        event.Metadata,
		ClientUpdatedAt: event.ClientUpdatedAt,
	}
}

func serverUpdatedAt(records map[string]progress.LessonProgress, lessonID string) time.Time {
	if record, ok := records[lessonID]; ok {
		return record.ServerUpdatedAt
	}
	return time.Time{}
}

func mergedFor(statuses []syncapi.MergeStatus, lessonID string) bool {
	for _, status := range statuses {
		if status.LessonID == lessonID {
			return status.Merged
		}
	}
	return false
}
