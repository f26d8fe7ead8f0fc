// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compare

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/modelrace/internal/ollama"
)

// =============================================================================
// FAKE STREAM CLIENT
// =============================================================================

// scriptedStream describes what the fake backend does for one model.
type scriptedStream struct {
	chunks []ollama.StreamChunk
	err    error
	// hold blocks after emitting the chunks until the context is cancelled,
	// simulating a model that never finishes on its own.
	hold bool
}

type fakeClient struct {
	mu        sync.Mutex
	checkErr  error
	streams   map[string]scriptedStream
	chatCalls []string
}

func (f *fakeClient) CheckRunning(ctx context.Context) error {
	return f.checkErr
}

func (f *fakeClient) ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, model)
	s := f.streams[model]
	f.mu.Unlock()

	for _, chunk := range s.chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		callback(chunk)
	}
	if s.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (f *fakeClient) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.chatCalls))
	copy(out, f.chatCalls)
	return out
}

func textChunks(parts ...string) []ollama.StreamChunk {
	chunks := make([]ollama.StreamChunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, ollama.StreamChunk{Content: p})
	}
	chunks = append(chunks, ollama.StreamChunk{Done: true, CompletionTokens: len(parts) * 5})
	return chunks
}

// unthrottled makes every chunk flush immediately so tests are deterministic.
func unthrottled() *Options {
	return &Options{FlushInterval: -1}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestStartAllModelsComplete(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"llama3.2:3b":      {chunks: textChunks("Hello", " from", " llama")},
		"qwen2.5-coder:7b": {chunks: textChunks("Hi", " there")},
	}}
	orch := NewOrchestrator(client, unthrottled())

	sess := orch.Start(context.Background(), "greet me", "", []ModelRef{
		{ID: "llama3.2:3b"},
		{ID: "qwen2.5-coder:7b"},
	})
	require.NotNil(t, sess)
	require.NoError(t, orch.Wait(waitCtx(t)))

	require.True(t, sess.IsCompleted())
	assert.Equal(t, "Hello from llama", sess.UnitByModel("llama3.2:3b").Response)
	assert.Equal(t, "Hi there", sess.UnitByModel("qwen2.5-coder:7b").Response)

	for _, u := range sess.Units {
		assert.True(t, u.Succeeded(), "unit %s should complete", u.ModelID)
		assert.False(t, u.EndTime.IsZero(), "unit %s should have an end time", u.ModelID)
		assert.GreaterOrEqual(t, u.ResponseTime, time.Duration(0))
		assert.NotZero(t, u.TokenCount)
	}
	assert.False(t, sess.CompletedAt.IsZero())

	// Finished session is archived exactly once.
	require.Len(t, orch.History(), 1)
	assert.Same(t, sess, orch.History()[0])
}

func TestChunkOrderPreserved(t *testing.T) {
	parts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	client := &fakeClient{streams: map[string]scriptedStream{
		"m": {chunks: textChunks(parts...)},
	}}
	orch := NewOrchestrator(client, unthrottled())

	sess := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m"}})
	require.NoError(t, orch.Wait(waitCtx(t)))

	assert.Equal(t, strings.Join(parts, ""), sess.Units[0].Response)
}

func TestFinalFlushBeatsThrottle(t *testing.T) {
	// A very long flush interval suppresses every mid-stream flush; the
	// response must still be complete after the terminal transition.
	client := &fakeClient{streams: map[string]scriptedStream{
		"m": {chunks: textChunks("one", " two", " three")},
	}}
	orch := NewOrchestrator(client, &Options{FlushInterval: time.Hour})

	sess := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m"}})
	require.NoError(t, orch.Wait(waitCtx(t)))

	assert.Equal(t, "one two three", sess.Units[0].Response)
	assert.True(t, sess.Units[0].Succeeded())
}

func TestSystemPromptPrependsMessage(t *testing.T) {
	msgs := buildMessages("you are terse", "hello")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "you are terse", msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)

	msgs = buildMessages("", "hello")
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
}

// =============================================================================
// ERROR ISOLATION
// =============================================================================

func TestUnitErrorDoesNotAffectOthers(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"good": {chunks: textChunks("fine")},
		"bad": {
			chunks: []ollama.StreamChunk{{Content: "partial "}},
			err:    errors.New("timeout"),
		},
	}}
	orch := NewOrchestrator(client, unthrottled())

	sess := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "good"}, {ID: "bad"}})
	require.NoError(t, orch.Wait(waitCtx(t)))

	good := sess.UnitByModel("good")
	assert.True(t, good.Succeeded())
	assert.Equal(t, "fine", good.Response)

	bad := sess.UnitByModel("bad")
	assert.Equal(t, StateError, bad.State.Kind)
	assert.Equal(t, "timeout", bad.ErrorMessage())
	// Partial output survives the failure; response time stays unset.
	assert.Equal(t, "partial ", bad.Response)
	assert.Zero(t, bad.ResponseTime)
	assert.False(t, bad.EndTime.IsZero())

	// The session still finishes and gets archived.
	assert.True(t, sess.IsCompleted())
	assert.Len(t, orch.History(), 1)
}

func TestUnreachableServerFailsFast(t *testing.T) {
	client := &fakeClient{
		checkErr: ollama.ErrNotRunning,
		streams:  map[string]scriptedStream{},
	}
	orch := NewOrchestrator(client, unthrottled())

	sess := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NotNil(t, sess)
	require.NoError(t, orch.Wait(waitCtx(t)))

	for _, u := range sess.Units {
		assert.Equal(t, StateError, u.State.Kind)
		assert.Equal(t, "Server unreachable", u.ErrorMessage())
	}
	// No chat request is ever dispatched when the probe fails.
	assert.Empty(t, client.calls())
	assert.True(t, sess.IsCompleted())
}

// =============================================================================
// EMPTY MODEL LIST
// =============================================================================

func TestStartWithNoModelsIsNoOp(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{}}
	orch := NewOrchestrator(client, unthrottled())

	sess := orch.Start(context.Background(), "p", "", nil)
	assert.Nil(t, sess)
	assert.Nil(t, orch.CurrentSession())
	assert.ErrorIs(t, orch.Wait(context.Background()), ErrNoActiveSession)
	assert.Empty(t, client.calls())
}

func TestStartWithNoModelsKeepsActiveSession(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"m": {hold: true},
	}}
	orch := NewOrchestrator(client, unthrottled())

	active := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m"}})
	require.NotNil(t, active)

	assert.Nil(t, orch.Start(context.Background(), "p2", "", nil))
	assert.Same(t, active, orch.CurrentSession())

	require.NoError(t, orch.StopAll())
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestStopAllMarksUnitsCompleted(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"m1": {chunks: []ollama.StreamChunk{{Content: "so far"}}, hold: true},
		"m2": {hold: true},
	}}
	orch := NewOrchestrator(client, unthrottled())

	sess := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m1"}, {ID: "m2"}})

	// Let m1's first chunk land before stopping.
	require.Eventually(t, func() bool {
		snap, err := orch.SnapshotCurrent()
		return err == nil && snap.UnitByModel("m1").Response == "so far"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, orch.StopAll())
	require.NoError(t, orch.Wait(waitCtx(t)))

	// A user stop is completion, not an error.
	for _, u := range sess.Units {
		assert.Equal(t, StateCompleted, u.State.Kind, "unit %s", u.ModelID)
		assert.False(t, u.EndTime.IsZero())
	}
	assert.Equal(t, "so far", sess.UnitByModel("m1").Response)
	assert.True(t, sess.IsCompleted())
	assert.Len(t, orch.History(), 1)
}

func TestStopAllWithoutSession(t *testing.T) {
	orch := NewOrchestrator(&fakeClient{}, nil)
	assert.ErrorIs(t, orch.StopAll(), ErrNoActiveSession)
	assert.ErrorIs(t, orch.Clear(), ErrNoActiveSession)
}

func TestClearDropsActiveSession(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"m": {hold: true},
	}}
	orch := NewOrchestrator(client, unthrottled())

	orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m"}})
	require.NoError(t, orch.Clear())

	assert.Nil(t, orch.CurrentSession())
	// Clear stops the session first, so it still reaches history.
	assert.Len(t, orch.History(), 1)
}

// =============================================================================
// SUPERSEDING SESSIONS
// =============================================================================

func TestStartSupersedesActiveSession(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"old": {hold: true},
		"new": {chunks: textChunks("done")},
	}}
	orch := NewOrchestrator(client, unthrottled())

	first := orch.Start(context.Background(), "first", "", []ModelRef{{ID: "old"}})
	second := orch.Start(context.Background(), "second", "", []ModelRef{{ID: "new"}})
	require.NotSame(t, first, second)

	assert.Same(t, second, orch.CurrentSession())
	require.NoError(t, orch.Wait(waitCtx(t)))

	// The superseded session was stopped, completed, and archived first.
	assert.True(t, first.IsCompleted())
	assert.Equal(t, StateCompleted, first.Units[0].State.Kind)

	history := orch.History()
	require.Len(t, history, 2)
	assert.Same(t, first, history[0])
	assert.Same(t, second, history[1])
}

// =============================================================================
// SNAPSHOTS AND UPDATES
// =============================================================================

func TestSnapshotCurrentIsDeepCopy(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"m": {hold: true},
	}}
	orch := NewOrchestrator(client, unthrottled())

	orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m"}})
	snap, err := orch.SnapshotCurrent()
	require.NoError(t, err)

	snap.Units[0].Response = "mutated"
	live, err := orch.SnapshotCurrent()
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", live.Units[0].Response)

	require.NoError(t, orch.StopAll())
}

func TestOnUpdateObservesTerminalStates(t *testing.T) {
	var mu sync.Mutex
	var updates []UnitUpdate

	client := &fakeClient{streams: map[string]scriptedStream{
		"good": {chunks: textChunks("ok")},
		"bad":  {err: errors.New("exploded")},
	}}
	orch := NewOrchestrator(client, &Options{
		FlushInterval: -1,
		OnUpdate: func(u UnitUpdate) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		},
	})

	sess := orch.Start(context.Background(), "p", "", []ModelRef{{ID: "good"}, {ID: "bad"}})
	require.NoError(t, orch.Wait(waitCtx(t)))

	mu.Lock()
	defer mu.Unlock()

	terminal := map[string]UnitState{}
	for _, u := range updates {
		assert.Equal(t, sess.ID, u.SessionID)
		if u.State.IsTerminal() {
			terminal[u.ModelID] = u.State
		}
	}
	assert.Equal(t, StateCompleted, terminal["good"].Kind)
	assert.Equal(t, StateError, terminal["bad"].Kind)
	assert.Equal(t, "exploded", terminal["bad"].Message)
}

func TestClearHistory(t *testing.T) {
	client := &fakeClient{streams: map[string]scriptedStream{
		"m": {chunks: textChunks("x")},
	}}
	orch := NewOrchestrator(client, unthrottled())

	orch.Start(context.Background(), "p", "", []ModelRef{{ID: "m"}})
	require.NoError(t, orch.Wait(waitCtx(t)))
	require.Len(t, orch.History(), 1)

	orch.ClearHistory()
	assert.Empty(t, orch.History())
}
