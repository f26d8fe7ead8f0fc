// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compare

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/modelrace/internal/ollama"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoActiveSession is returned by operations that require an active
	// comparison session when none exists.
	ErrNoActiveSession = errors.New("no active comparison session")
)

// serverUnreachableMessage is the fixed per-unit error recorded when the
// reachability probe fails before fan-out.
const serverUnreachableMessage = "Server unreachable"

// =============================================================================
// STREAM CLIENT
// =============================================================================

// StreamClient is the orchestrator's view of a model backend. *ollama.Client
// satisfies it; tests substitute scripted fakes.
type StreamClient interface {
	// CheckRunning verifies the backend service is reachable.
	CheckRunning(ctx context.Context) error

	// ChatStream sends a streaming chat request and invokes the callback for
	// each chunk, in arrival order, until the stream ends or fails.
	ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error
}

// =============================================================================
// OPTIONS
// =============================================================================

// DefaultFlushInterval bounds how often a unit's buffered text is flushed
// into the shared session state while streaming.
const DefaultFlushInterval = 100 * time.Millisecond

// UnitUpdate is a copied snapshot of one unit's visible state, delivered to
// the OnUpdate hook outside the orchestrator lock.
type UnitUpdate struct {
	SessionID string
	UnitID    string
	ModelID   string
	ModelName string
	Response  string
	State     UnitState
}

// Options configures an Orchestrator.
type Options struct {
	// FlushInterval is the minimum delay between mid-stream flushes of one
	// unit's buffer into session state. Zero means DefaultFlushInterval;
	// negative disables throttling so every chunk flushes. The final flush
	// on completion always happens regardless of the interval.
	FlushInterval time.Duration

	// OnUpdate, when set, is invoked with a snapshot after every flush and
	// state transition. It is called outside the orchestrator lock.
	OnUpdate func(UnitUpdate)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns at most one active comparison session and a history of
// finished ones. It fans a single prompt out to N models, streams each
// model's output into its unit with per-unit flush throttling, and provides
// cooperative cancellation.
//
// All mutation of shared session state is funneled through the orchestrator
// mutex; per-unit buffers live in the streaming goroutine's closure and are
// never read by anyone else. Construct one per application and pass it where
// needed; there is deliberately no package-level instance.
type Orchestrator struct {
	mu     sync.Mutex
	client StreamClient

	flushInterval time.Duration
	onUpdate      func(UnitUpdate)

	current *Session
	history []*Session
	cancels map[string]context.CancelFunc // unit ID -> cancel
	pending int                           // non-terminal units in current session
	done    chan struct{}                 // closed when current session completes
}

// NewOrchestrator creates an orchestrator using the given backend client.
func NewOrchestrator(client StreamClient, opts *Options) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		flushInterval: DefaultFlushInterval,
	}
	if opts != nil {
		o.flushInterval = opts.FlushInterval
		o.onUpdate = opts.OnUpdate
		if opts.FlushInterval == 0 {
			o.flushInterval = DefaultFlushInterval
		}
	}
	return o
}

// =============================================================================
// START
// =============================================================================

// Start begins a new comparison session for the prompt across the given
// models and returns it. Streaming continues in the background; use Wait to
// block until every unit is terminal.
//
// An empty model list is ignored entirely: no session is created and any
// active session is left untouched. Prompt emptiness is the caller's concern.
//
// Any previously active session is stopped (its streaming units become
// completed, as with StopAll) and moved into history before the new session
// takes its place.
//
// Before dispatching any model calls the backend is probed once; if it is
// unreachable every unit immediately enters the error state with a fixed
// message and no chat requests are made.
func (o *Orchestrator) Start(ctx context.Context, prompt, systemPrompt string, models []ModelRef) *Session {
	if len(models) == 0 {
		return nil
	}

	sess := NewSession(prompt, systemPrompt, models)

	o.mu.Lock()
	var updates []UnitUpdate
	if o.current != nil {
		updates = o.stopAllLocked()
	}
	o.current = sess
	o.cancels = make(map[string]context.CancelFunc)
	o.pending = len(sess.Units)
	o.done = make(chan struct{})
	o.mu.Unlock()
	o.emitAll(updates)

	// Fail-fast: one connectivity probe gates the whole fan-out instead of
	// letting N calls fail independently.
	if err := o.client.CheckRunning(ctx); err != nil {
		o.mu.Lock()
		updates = updates[:0]
		for _, unit := range sess.Units {
			if upd, ok := o.failUnitLocked(sess, unit, unit.Response, serverUnreachableMessage); ok {
				updates = append(updates, upd)
			}
		}
		o.mu.Unlock()
		o.emitAll(updates)
		return sess
	}

	messages := buildMessages(systemPrompt, prompt)
	for _, unit := range sess.Units {
		unitCtx, cancel := context.WithCancel(ctx)
		o.mu.Lock()
		o.cancels[unit.ID] = cancel
		o.mu.Unlock()
		go o.streamUnit(unitCtx, sess, unit, messages)
	}
	return sess
}

// buildMessages assembles the request: optional system message, then the
// user prompt.
func buildMessages(systemPrompt, prompt string) []ollama.Message {
	var messages []ollama.Message
	if systemPrompt != "" {
		messages = append(messages, ollama.NewSystemMessage(systemPrompt))
	}
	messages = append(messages, ollama.NewUserMessage(prompt))
	return messages
}

// =============================================================================
// PER-UNIT STREAMING TASK
// =============================================================================

// streamUnit runs one model's streaming call to completion. The accumulation
// buffer and flush limiter are local to this goroutine; only whole-buffer
// flushes cross into shared state, through the orchestrator mutex.
func (o *Orchestrator) streamUnit(ctx context.Context, sess *Session, unit *ResponseUnit, messages []ollama.Message) {
	defer o.releaseCancel(unit.ID)

	var buf strings.Builder
	var tokens int
	var streamErr error
	limiter := o.newFlushLimiter()

	err := o.client.ChatStream(ctx, unit.ModelID, messages, func(chunk ollama.StreamChunk) {
		if chunk.Error != nil {
			streamErr = chunk.Error
			return
		}
		buf.WriteString(chunk.Content)
		if chunk.Done {
			tokens = chunk.CompletionTokens
		}
		if limiter.Allow() {
			o.flushUnit(sess, unit, buf.String())
		}
	})
	if err == nil {
		err = streamErr
	}

	switch {
	case err == nil:
		o.completeUnit(sess, unit, buf.String(), tokens)
	case errors.Is(err, context.Canceled):
		// Stop-all already forced this unit terminal; a cancelled task stops
		// emitting mutations once it observes cancellation.
	default:
		o.failUnit(sess, unit, buf.String(), err.Error())
	}
}

func (o *Orchestrator) newFlushLimiter() *rate.Limiter {
	if o.flushInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(o.flushInterval), 1)
}

func (o *Orchestrator) releaseCancel(unitID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[unitID]; ok {
		cancel()
		delete(o.cancels, unitID)
	}
	o.mu.Unlock()
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

// flushUnit publishes the accumulated text for a still-streaming unit.
// Flushes against terminal units are dropped: a late callback from a
// cancelled stream must not mutate state.
func (o *Orchestrator) flushUnit(sess *Session, unit *ResponseUnit, text string) {
	o.mu.Lock()
	if unit.State.IsTerminal() {
		o.mu.Unlock()
		return
	}
	unit.Response = text
	upd := snapshotUnit(sess, unit)
	o.mu.Unlock()
	o.emit(upd)
}

// completeUnit performs the final whole-buffer flush and moves the unit to
// completed, stamping EndTime and ResponseTime exactly once.
func (o *Orchestrator) completeUnit(sess *Session, unit *ResponseUnit, text string, tokens int) {
	o.mu.Lock()
	if unit.State.IsTerminal() {
		o.mu.Unlock()
		return
	}
	now := time.Now()
	unit.Response = text
	unit.TokenCount = tokens
	unit.EndTime = now
	unit.ResponseTime = now.Sub(unit.StartTime)
	unit.State = Completed()
	upd := snapshotUnit(sess, unit)
	o.unitBecameTerminalLocked(sess)
	o.mu.Unlock()
	o.emit(upd)
}

// failUnit records a per-unit failure. Text received before the failure is
// kept so partial results stay showable; ResponseTime stays unset.
func (o *Orchestrator) failUnit(sess *Session, unit *ResponseUnit, text, message string) {
	o.mu.Lock()
	upd, ok := o.failUnitLocked(sess, unit, text, message)
	o.mu.Unlock()
	if ok {
		o.emit(upd)
	}
}

func (o *Orchestrator) failUnitLocked(sess *Session, unit *ResponseUnit, text, message string) (UnitUpdate, bool) {
	if unit.State.IsTerminal() {
		return UnitUpdate{}, false
	}
	if text != "" {
		unit.Response = text
	}
	unit.EndTime = time.Now()
	unit.State = Errored(message)
	upd := snapshotUnit(sess, unit)
	o.unitBecameTerminalLocked(sess)
	return upd, true
}

// unitBecameTerminalLocked updates session-level bookkeeping after a unit
// transition. When the last unit turns terminal the session's CompletedAt is
// stamped (once), the session is archived to history, and waiters are
// released.
func (o *Orchestrator) unitBecameTerminalLocked(sess *Session) {
	if sess != o.current {
		return
	}
	o.pending--
	if o.pending > 0 {
		return
	}
	if sess.CompletedAt.IsZero() {
		sess.CompletedAt = time.Now()
		o.history = append(o.history, sess)
		close(o.done)
	}
}

func snapshotUnit(sess *Session, unit *ResponseUnit) UnitUpdate {
	return UnitUpdate{
		SessionID: sess.ID,
		UnitID:    unit.ID,
		ModelID:   unit.ModelID,
		ModelName: unit.ModelName,
		Response:  unit.Response,
		State:     unit.State,
	}
}

func (o *Orchestrator) emit(upd UnitUpdate) {
	if o.onUpdate != nil {
		o.onUpdate(upd)
	}
}

func (o *Orchestrator) emitAll(updates []UnitUpdate) {
	for _, upd := range updates {
		o.emit(upd)
	}
}

// =============================================================================
// STOP / CLEAR
// =============================================================================

// StopAll cancels every in-flight model stream of the active session and
// force-transitions still-streaming units to completed - a user-initiated
// stop is not a failure. It does not block waiting for the streaming
// goroutines to observe cancellation.
func (o *Orchestrator) StopAll() error {
	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	updates := o.stopAllLocked()
	o.mu.Unlock()
	o.emitAll(updates)
	return nil
}

func (o *Orchestrator) stopAllLocked() []UnitUpdate {
	for id, cancel := range o.cancels {
		cancel()
		delete(o.cancels, id)
	}

	var updates []UnitUpdate
	now := time.Now()
	for _, unit := range o.current.Units {
		if unit.State.IsTerminal() {
			continue
		}
		unit.EndTime = now
		unit.ResponseTime = now.Sub(unit.StartTime)
		unit.State = Completed()
		updates = append(updates, snapshotUnit(o.current, unit))
		o.pending--
	}

	if o.pending == 0 && o.current.CompletedAt.IsZero() {
		o.current.CompletedAt = now
		o.history = append(o.history, o.current)
		close(o.done)
	}
	return updates
}

// Clear stops all generations and drops the active-session reference.
// History is untouched.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	updates := o.stopAllLocked()
	o.current = nil
	o.pending = 0
	o.cancels = nil
	o.mu.Unlock()
	o.emitAll(updates)
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Wait blocks until every unit of the active session is terminal, or the
// context is cancelled. Returns ErrNoActiveSession when no session is active.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	done := o.done
	o.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentSession returns the active session, or nil. The returned session is
// owned by the orchestrator; read it only after Wait/StopAll, or use
// SnapshotCurrent for a race-free copy while streaming.
func (o *Orchestrator) CurrentSession() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// SnapshotCurrent returns a deep copy of the active session, safe to read and
// export while streaming is still in progress.
func (o *Orchestrator) SnapshotCurrent() (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil, ErrNoActiveSession
	}
	return o.current.Clone(), nil
}

// History returns the finished sessions, oldest first.
func (o *Orchestrator) History() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Session, len(o.history))
	copy(out, o.history)
	return out
}

// ClearHistory drops all finished sessions. The active session is untouched.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}
