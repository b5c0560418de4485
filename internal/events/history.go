package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxHistorySize is the rotation threshold (50MB).
	DefaultMaxHistorySize = 50 * 1024 * 1024
	// HistoryFileExtension is the history file extension.
	HistoryFileExtension = ".jsonl"
	// ArchiveDir is the directory rotated files move into.
	ArchiveDir = "archive"
)

// History appends records to a JSONL file, one object per line, rotating the
// file into an archive directory when it grows past maxSize.
type History struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	path            string
	rotationCounter int
}

// NewHistory opens (or creates) the history file at path.
func NewHistory(path string, maxSize int64) (*History, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxHistorySize
	}
	h := &History{path: path, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := h.open(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) open() error {
	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat history file: %w", err)
	}
	h.file = file
	h.currentSize = stat.Size()
	return nil
}

// Append writes one record and syncs it to disk.
func (h *History) Append(rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return errors.New("history is closed")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	data = append(data, '\n')

	if h.currentSize > 0 && h.currentSize+int64(len(data)) > h.maxSize {
		if err := h.rotate(); err != nil {
			return fmt.Errorf("failed to rotate history: %w", err)
		}
	}

	n, err := h.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write history record: %w", err)
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync history file: %w", err)
	}
	h.currentSize += int64(n)
	return nil
}

func (h *History) rotate() error {
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("failed to close current history file: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(h.path), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	h.rotationCounter++
	base := strings.TrimSuffix(filepath.Base(h.path), HistoryFileExtension)
	archiveName := fmt.Sprintf("%s.%s.%d%s", base, time.Now().Format("20060102_150405"), h.rotationCounter, HistoryFileExtension)
	if err := os.Rename(h.path, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("failed to archive history file: %w", err)
	}
	return h.open()
}

// Path returns the live history file path.
func (h *History) Path() string {
	return h.path
}

// Close syncs and closes the history file.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}
	f := h.file
	h.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadHistory loads every record from path. Malformed lines are skipped and counted.
func ReadHistory(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var records []Record
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, skipped, fmt.Errorf("failed to read history file: %w", err)
	}
	return records, skipped, nil
}
