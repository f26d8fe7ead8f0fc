// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/modelrace/internal/compare"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports sessions to pretty-printed JSON.
//
// The document is deterministic given the session's state except for the
// exported_at timestamp. Keys are emitted in sorted order; the DTO fields
// below are declared alphabetically by JSON key to keep it that way.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// sessionDoc is the top-level JSON document for one session.
type sessionDoc struct {
	CompletedAt time.Time `json:"completed_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
	ExportedAt  time.Time `json:"exported_at"`
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	System      string    `json:"system_prompt,omitempty"`
	Units       []unitDoc `json:"units"`
}

// unitDoc is one model's tuple within the document.
type unitDoc struct {
	ErrorMessage   string `json:"error_message,omitempty"`
	ModelName      string `json:"model_name"`
	ResponseText   string `json:"response_text"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	State          string `json:"state"`
	Succeeded      bool   `json:"succeeded"`
	TokenCount     int    `json:"token_count,omitempty"`
}

// Export converts a session to JSON.
func (e *JSONExporter) Export(sess *compare.Session) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}

	doc := sessionDoc{
		CompletedAt: sess.CompletedAt,
		CreatedAt:   sess.CreatedAt,
		ExportedAt:  time.Now(),
		ID:          sess.ID,
		Prompt:      sess.Prompt,
		System:      sess.SystemPrompt,
		Units:       make([]unitDoc, 0, len(sess.Units)),
	}
	for _, u := range sess.Units {
		doc.Units = append(doc.Units, unitDoc{
			ErrorMessage:   u.ErrorMessage(),
			ModelName:      u.ModelName,
			ResponseText:   u.Response,
			ResponseTimeMs: u.ResponseTime.Milliseconds(),
			State:          string(u.State.Kind),
			Succeeded:      u.Succeeded(),
			TokenCount:     u.TokenCount,
		})
	}

	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
