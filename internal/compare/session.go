// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compare provides the multi-model comparison session model and the
// orchestrator that runs one prompt against several models concurrently.
package compare

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// UNIT STATE
// =============================================================================

// StateKind identifies the lifecycle phase of a response unit.
type StateKind string

const (
	// StateStreaming indicates the model is still producing output.
	StateStreaming StateKind = "streaming"

	// StateCompleted indicates the model finished (or was stopped by the user).
	StateCompleted StateKind = "completed"

	// StateError indicates the model's stream failed.
	StateError StateKind = "error"
)

// UnitState is the lifecycle state of a response unit. Only the error state
// carries a message. Completed and error are terminal: a unit never leaves
// them within one session.
type UnitState struct {
	Kind    StateKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

// Streaming returns the initial streaming state.
func Streaming() UnitState {
	return UnitState{Kind: StateStreaming}
}

// Completed returns the terminal completed state.
func Completed() UnitState {
	return UnitState{Kind: StateCompleted}
}

// Errored returns the terminal error state carrying the failure description.
func Errored(message string) UnitState {
	return UnitState{Kind: StateError, Message: message}
}

// IsTerminal reports whether the state admits no further transitions.
func (s UnitState) IsTerminal() bool {
	return s.Kind == StateCompleted || s.Kind == StateError
}

// String returns a display label for the state.
func (s UnitState) String() string {
	switch s.Kind {
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error: " + s.Message
	default:
		return "unknown"
	}
}

// =============================================================================
// MODEL REFERENCE
// =============================================================================

// ModelRef identifies one model participating in a comparison.
type ModelRef struct {
	// ID is the backend model identifier (e.g., "qwen2.5-coder:14b").
	ID string

	// Name is the display name. Falls back to ID when empty.
	Name string
}

// DisplayName returns Name, or ID when no display name was given.
func (m ModelRef) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// =============================================================================
// RESPONSE UNIT
// =============================================================================

// ResponseUnit is one model's participation in a comparison session.
//
// Response is append-only while streaming: the orchestrator only ever replaces
// it with a longer prefix-preserving accumulation of the same stream.
// ResponseTime is set exactly once, at the transition into the completed
// state, as EndTime - StartTime; it stays zero for streaming and errored
// units.
type ResponseUnit struct {
	ID        string `json:"id"`
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name"`

	Response string    `json:"response"`
	State    UnitState `json:"state"`

	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time,omitzero"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
	TokenCount   int           `json:"token_count,omitempty"`
}

// Succeeded reports whether the unit reached the completed state.
func (u *ResponseUnit) Succeeded() bool {
	return u.State.Kind == StateCompleted
}

// ErrorMessage returns the failure description for errored units, "" otherwise.
func (u *ResponseUnit) ErrorMessage() string {
	if u.State.Kind == StateError {
		return u.State.Message
	}
	return ""
}

// Clone returns a deep copy of the unit.
func (u *ResponseUnit) Clone() *ResponseUnit {
	c := *u
	return &c
}

// =============================================================================
// COMPARISON SESSION
// =============================================================================

// Session is one comparison run: a fixed, ordered set of response units
// sharing a single prompt. Units are created at session start (one per
// selected model, in selection order) and never added or removed afterward.
//
// CompletedAt is stamped once, the first time every unit is terminal, and is
// never recomputed. All statistics are derived on demand from unit state.
type Session struct {
	ID           string          `json:"id"`
	Prompt       string          `json:"prompt"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Units        []*ResponseUnit `json:"units"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  time.Time       `json:"completed_at,omitzero"`
}

// NewSession creates a session with one streaming unit per model, preserving
// selection order. All units share the session's creation instant as their
// start time.
func NewSession(prompt, systemPrompt string, models []ModelRef) *Session {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Units:        make([]*ResponseUnit, 0, len(models)),
		CreatedAt:    now,
	}
	for _, m := range models {
		sess.Units = append(sess.Units, &ResponseUnit{
			ID:        uuid.NewString(),
			ModelID:   m.ID,
			ModelName: m.DisplayName(),
			State:     Streaming(),
			StartTime: now,
		})
	}
	return sess
}

// IsCompleted reports whether every unit is terminal (completed or error).
func (s *Session) IsCompleted() bool {
	if len(s.Units) == 0 {
		return false
	}
	for _, u := range s.Units {
		if !u.State.IsTerminal() {
			return false
		}
	}
	return true
}

// IsStreaming reports whether any unit is still streaming.
func (s *Session) IsStreaming() bool {
	for _, u := range s.Units {
		if u.State.Kind == StateStreaming {
			return true
		}
	}
	return false
}

// CompletedUnits returns the units in the completed state, in session order.
func (s *Session) CompletedUnits() []*ResponseUnit {
	var out []*ResponseUnit
	for _, u := range s.Units {
		if u.Succeeded() {
			out = append(out, u)
		}
	}
	return out
}

// FastestUnit returns the completed unit with the minimum response time.
// Ties are broken by session order. Returns nil when no unit completed.
func (s *Session) FastestUnit() *ResponseUnit {
	var fastest *ResponseUnit
	for _, u := range s.Units {
		if !u.Succeeded() {
			continue
		}
		if fastest == nil || u.ResponseTime < fastest.ResponseTime {
			fastest = u
		}
	}
	return fastest
}

// AverageResponseTime returns the arithmetic mean of response times over
// completed units. The second return is false when no unit completed.
func (s *Session) AverageResponseTime() (time.Duration, bool) {
	var total time.Duration
	var count int
	for _, u := range s.Units {
		if u.Succeeded() {
			total += u.ResponseTime
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return total / time.Duration(count), true
}

// LongestResponse returns the completed unit with the most response
// characters. Ties are broken by session order. Returns nil when no unit
// completed.
func (s *Session) LongestResponse() *ResponseUnit {
	var longest *ResponseUnit
	for _, u := range s.Units {
		if !u.Succeeded() {
			continue
		}
		if longest == nil || len(u.Response) > len(longest.Response) {
			longest = u
		}
	}
	return longest
}

// UnitByModel returns the unit for a model ID, or nil if absent.
func (s *Session) UnitByModel(modelID string) *ResponseUnit {
	for _, u := range s.Units {
		if u.ModelID == modelID {
			return u
		}
	}
	return nil
}

// Clone returns a deep copy of the session. Exporters operate on clones so a
// still-streaming session can be rendered without racing the orchestrator.
func (s *Session) Clone() *Session {
	c := *s
	c.Units = make([]*ResponseUnit, len(s.Units))
	for i, u := range s.Units {
		c.Units[i] = u.Clone()
	}
	return &c
}
