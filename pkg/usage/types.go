package usage

import (
	"fmt"
	"time"
)

// Record is one row in the append-only token usage ledger. Rows are
// written only for successfully completed upstream calls and are never
// updated or deleted, even when the owning user goes away.
type Record struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Endpoint         string    `json:"endpoint,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the ledger invariants: a username and model are
// present, counts are non-negative, and the total is the sum of its
// parts.
func (r *Record) Validate() error {
	if r.Username == "" {
		return fmt.Errorf("usage record requires a username")
	}
	if r.Model == "" {
		return fmt.Errorf("usage record requires a model")
	}
	if r.PromptTokens < 0 || r.CompletionTokens < 0 {
		return fmt.Errorf("token counts must not be negative")
	}
	if r.TotalTokens != r.PromptTokens+r.CompletionTokens {
		return fmt.Errorf("total_tokens %d does not equal prompt %d + completion %d",
			r.TotalTokens, r.PromptTokens, r.CompletionTokens)
	}
	return nil
}

// ModelTotals aggregates usage for one model within a summary window.
type ModelTotals struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
}

// Summary is a per-user usage rollup over a trailing window.
type Summary struct {
	Username         string        `json:"username"`
	Days             int           `json:"days"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalTokens      int64         `json:"total_tokens"`
	Requests         int64         `json:"requests"`
	Models           []ModelTotals `json:"models"`
}
