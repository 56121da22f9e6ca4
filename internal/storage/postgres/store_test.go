package postgres

import (
	"context"
	"testing"
	"time"

	"zapquote/internal/model"
)

func TestQuoteArgs(t *testing.T) {
	record := model.QuoteRecord{
		ChainID:       56,
		AmmID:         "pancake",
		Family:        "constant-product",
		Kind:          "swap",
		Pool:          "0x1111111111111111111111111111111111111111",
		InputTokens:   []string{"0xaaa"},
		InputAmounts:  []string{"1.5"},
		OutputTokens:  []string{"0xbbb"},
		OutputAmounts: []string{"2.9"},
		PriceImpact:   "0.001",
		StepCount:     1,
		QuotedAt:      "2024-01-01T00:00:00Z",
	}
	args, err := quoteArgs(record)
	if err != nil {
		t.Fatalf("quoteArgs: %v", err)
	}
	if len(args) != 14 {
		t.Fatalf("expected 14 args, got %d", len(args))
	}
	if args[0].(int64) != 56 {
		t.Fatalf("chain id = %v", args[0])
	}
	if mins := args[9].([]string); mins == nil || len(mins) != 0 {
		t.Fatalf("min amounts should be an empty array, got %#v", args[9])
	}
	if !args[13].(time.Time).Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("quoted at = %v", args[13])
	}

	record.QuotedAt = "yesterday"
	if _, err := quoteArgs(record); err == nil {
		t.Fatalf("expected error for bad timestamp")
	}
}

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestInsertNothing(t *testing.T) {
	s := &Store{}
	if err := s.InsertQuotes(context.Background(), nil); err != nil {
		t.Fatalf("empty insert: %v", err)
	}
}
