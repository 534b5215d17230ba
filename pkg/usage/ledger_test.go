package usage_test

import (
	"context"
	"testing"
	"time"

	"fulcrum-hq/portunus/pkg/storage"
	"fulcrum-hq/portunus/pkg/usage"
)

func newTestLedger(t *testing.T) *usage.Ledger {
	t.Helper()
	return usage.NewLedger(storage.NewMemory(), nil)
}

func TestAppend_FillsTotal(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	r := &usage.Record{Username: "alice", Model: "openai_gpt-4", PromptTokens: 10, CompletionTokens: 5}
	if err := ledger.Append(ctx, r); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if r.TotalTokens != 15 {
		t.Errorf("Expected total 15, got %d", r.TotalTokens)
	}
	if r.CreatedAt.IsZero() {
		t.Error("Expected Append to stamp the record")
	}
	if r.ID == 0 {
		t.Error("Expected an assigned id")
	}
}

func TestAppend_RejectsInconsistentTotal(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  usage.Record
	}{
		{
			name: "total disagrees with parts",
			rec:  usage.Record{Username: "alice", Model: "m", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 99},
		},
		{
			name: "negative prompt tokens",
			rec:  usage.Record{Username: "alice", Model: "m", PromptTokens: -1},
		},
		{
			name: "missing username",
			rec:  usage.Record{Model: "m", PromptTokens: 1, CompletionTokens: 1},
		},
		{
			name: "missing model",
			rec:  usage.Record{Username: "alice", PromptTokens: 1, CompletionTokens: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if err := ledger.Append(ctx, &rec); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestAppend_TimestampsStrictlyIncrease(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 50; i++ {
		r := &usage.Record{Username: "alice", Model: "m", PromptTokens: 1, CompletionTokens: 1}
		if err := ledger.Append(ctx, r); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if !r.CreatedAt.After(prev) {
			t.Fatalf("Record %d not after its predecessor: %v <= %v", i, r.CreatedAt, prev)
		}
		prev = r.CreatedAt
	}
}

func TestSummary(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rows := []usage.Record{
		{Username: "alice", Model: "openai_gpt-4", PromptTokens: 10, CompletionTokens: 5},
		{Username: "alice", Model: "openai_gpt-4", PromptTokens: 20, CompletionTokens: 10},
		{Username: "alice", Model: "azure_gpt-4o", PromptTokens: 7, CompletionTokens: 3},
		{Username: "bob", Model: "openai_gpt-4", PromptTokens: 100, CompletionTokens: 50},
	}
	for i := range rows {
		if err := ledger.Append(ctx, &rows[i]); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	summary, err := ledger.Summary(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Days != usage.DefaultWindowDays {
		t.Errorf("Expected default window, got %d", summary.Days)
	}
	if summary.PromptTokens != 37 || summary.CompletionTokens != 18 || summary.TotalTokens != 55 {
		t.Errorf("Unexpected totals: %+v", summary)
	}
	if summary.Requests != 3 {
		t.Errorf("Expected 3 requests, got %d", summary.Requests)
	}
	if len(summary.Models) != 2 {
		t.Errorf("Expected 2 model rollups, got %d", len(summary.Models))
	}

	empty, err := ledger.Summary(ctx, "nobody", 7)
	if err != nil {
		t.Fatalf("Summary for unknown user failed: %v", err)
	}
	if empty.TotalTokens != 0 || len(empty.Models) != 0 {
		t.Errorf("Expected empty summary, got %+v", empty)
	}
}

func TestDetails(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := &usage.Record{Username: "alice", Model: "m", PromptTokens: i, CompletionTokens: 0}
		if err := ledger.Append(ctx, r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := ledger.Details(ctx, "alice", 30, 3)
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	// Newest first: the last appended row leads.
	if records[0].PromptTokens != 4 {
		t.Errorf("Expected newest record first, got %+v", records[0])
	}
}
