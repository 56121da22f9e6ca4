package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"zapquote/internal/model"
)

// JsonlStorage appends quote records to a JSONL journal. With daily rotation each record
// goes to a file named after the UTC day it was quoted on.
type JsonlStorage struct {
	path  string
	daily bool
	mu    sync.Mutex
}

// JsonlOption configures a JsonlStorage.
type JsonlOption func(*JsonlStorage)

// WithDailyFiles splits the journal into <name>-YYYY-MM-DD<ext> files by quote date.
func WithDailyFiles() JsonlOption {
	return func(s *JsonlStorage) { s.daily = true }
}

func NewJsonlStorage(path string, opts ...JsonlOption) *JsonlStorage {
	s := &JsonlStorage{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PathFor returns the file a record is journaled to. Records without a parseable
// quote date stay in the base file.
func (s *JsonlStorage) PathFor(record model.QuoteRecord) string {
	if !s.daily || len(record.QuotedAt) < len("2006-01-02") {
		return s.path
	}
	day := record.QuotedAt[:len("2006-01-02")]
	if strings.Count(day, "-") != 2 {
		return s.path
	}
	ext := filepath.Ext(s.path)
	return strings.TrimSuffix(s.path, ext) + "-" + day + ext
}

// PutQuotes appends a batch of quote records as JSON lines. Every line is encoded
// before any file is touched so a bad record leaves the journal unchanged.
func (s *JsonlStorage) PutQuotes(records []model.QuoteRecord) error {
	if len(records) == 0 {
		return nil
	}

	var order []string
	lines := make(map[string][][]byte)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal quote record %s/%s: %w", record.AmmID, record.Kind, err)
		}
		path := s.PathFor(record)
		if _, ok := lines[path]; !ok {
			order = append(order, path)
		}
		lines[path] = append(lines[path], line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range order {
		if err := appendLines(path, lines[path]); err != nil {
			return err
		}
	}
	return nil
}

func appendLines(path string, lines [][]byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		writer.Write(line)
		writer.WriteByte('\n')
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
