package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"zapquote/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "quotes.jsonl")
	var sink Storage = NewJsonlStorage(path)

	first := []model.QuoteRecord{{AmmID: "a", Kind: "swap"}, {AmmID: "b", Kind: "deposit"}}
	if err := sink.PutQuotes(first); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := sink.PutQuotes([]model.QuoteRecord{{AmmID: "c", Kind: "withdraw"}}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if err := sink.PutQuotes(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var ids []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.QuoteRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		ids = append(ids, record.AmmID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("unexpected records: %v", ids)
	}
}

func TestJsonlStorageDailyFiles(t *testing.T) {
	dir := t.TempDir()
	sink := NewJsonlStorage(filepath.Join(dir, "quotes.jsonl"), WithDailyFiles())

	records := []model.QuoteRecord{
		{AmmID: "a", QuotedAt: "2026-10-17T23:59:59Z"},
		{AmmID: "b", QuotedAt: "2026-10-18T00:00:01Z"},
		{AmmID: "c", QuotedAt: "2026-10-17T08:00:00Z"},
		{AmmID: "d"},
	}
	if err := sink.PutQuotes(records); err != nil {
		t.Fatalf("put: %v", err)
	}

	want := map[string]int{
		"quotes-2026-10-17.jsonl": 2,
		"quotes-2026-10-18.jsonl": 1,
		"quotes.jsonl":            1,
	}
	for name, n := range want {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if got := bytes.Count(data, []byte("\n")); got != n {
			t.Fatalf("%s: expected %d lines, got %d", name, n, got)
		}
	}
}

func TestJsonlStoragePathForWithoutRotation(t *testing.T) {
	sink := NewJsonlStorage("out/quotes.jsonl")
	if got := sink.PathFor(model.QuoteRecord{QuotedAt: "2026-10-18T00:00:00Z"}); got != "out/quotes.jsonl" {
		t.Fatalf("unexpected path %s", got)
	}
}
