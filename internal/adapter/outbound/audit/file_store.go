// Package audit provides file-based audit persistence in JSON Lines
// format with daily rotation, size caps, and retention cleanup.
//
// Unlike a metrics pipeline, this log is part of the engine's
// correctness contract: Append is synchronous and its error aborts the
// calling operation, so a policy change can never outrun its audit
// trail.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
)

// auditFilePattern matches audit filenames: audit-YYYY-MM-DD.log or
// audit-YYYY-MM-DD-N.log for same-day size rotations.
var auditFilePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// auditFileInfo holds parsed information about one audit file.
type auditFileInfo struct {
	name   string
	date   string
	suffix int
}

// parseAuditFilename parses an audit filename into its components.
func parseAuditFilename(name string) (auditFileInfo, bool) {
	matches := auditFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return auditFileInfo{}, false
	}
	info := auditFileInfo{name: name, date: matches[1]}
	if matches[2] != "" {
		n, err := strconv.Atoi(matches[2])
		if err != nil {
			return auditFileInfo{}, false
		}
		info.suffix = n
	}
	return info, true
}

// sortAuditFiles sorts audit files chronologically (date, then suffix).
func sortAuditFiles(files []auditFileInfo) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
}

// Config holds configuration for the file-based audit store.
type Config struct {
	// Dir is the directory where audit files are stored.
	Dir string
	// RetentionDays is the number of days to keep audit files (default 30).
	RetentionDays int
	// MaxFileSizeMB is the maximum file size before rotation (default 100).
	MaxFileSizeMB int
}

// FileStore implements audit.Store with rotation and retention.
type FileStore struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	mu            sync.Mutex
	logger        *slog.Logger
	closed        bool
}

// NewFileStore creates a file-based audit store. It creates the
// directory if needed, opens today's log file, and runs retention
// cleanup once.
func NewFileStore(cfg Config, logger *slog.Logger) (*FileStore, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	s := &FileStore{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
	}

	if err := s.openCurrent(time.Now().UTC()); err != nil {
		return nil, err
	}
	s.cleanupExpired()
	return s, nil
}

// Append writes one entry as a JSON line and flushes it to the OS
// before returning. An error here must abort the caller's operation.
func (s *FileStore) Append(ctx context.Context, e *audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audit store is closed")
	}

	now := e.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if err := s.rotateIfNeeded(now, int64(len(data))); err != nil {
		return err
	}

	n, err := s.currentFile.Write(data)
	s.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Query scans audit files newest-first and returns matching entries.
func (s *FileStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}

	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}

	var result []audit.Entry
	// Newest file first; entries within a file are appended
	// chronologically, so read each file fully and reverse.
	for i := len(files) - 1; i >= 0 && len(result) < limit; i-- {
		entries, err := s.readFile(filepath.Join(s.dir, files[i].name))
		if err != nil {
			s.logger.Warn("skipping unreadable audit file", "file", files[i].name, "error", err)
			continue
		}
		for j := len(entries) - 1; j >= 0 && len(result) < limit; j-- {
			if f.Matches(&entries[j]) {
				result = append(result, entries[j])
			}
		}
	}
	return result, nil
}

// Close closes the current audit file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.currentFile != nil {
		return s.currentFile.Close()
	}
	return nil
}

// rotateIfNeeded switches files on date change or size overflow.
// Caller must hold s.mu.
func (s *FileStore) rotateIfNeeded(now time.Time, incoming int64) error {
	date := now.Format("2006-01-02")
	if date != s.currentDate {
		s.currentSuffix = 0
		if err := s.openCurrentLocked(date, 0); err != nil {
			return err
		}
		s.cleanupExpired()
		return nil
	}
	if s.currentSize+incoming > s.maxFileSize {
		return s.openCurrentLocked(date, s.currentSuffix+1)
	}
	return nil
}

// openCurrent opens today's audit file. Takes s.mu.
func (s *FileStore) openCurrent(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCurrentLocked(now.Format("2006-01-02"), 0)
}

// openCurrentLocked opens the audit file for date/suffix, appending to
// an existing file if present. Caller must hold s.mu.
func (s *FileStore) openCurrentLocked(date string, suffix int) error {
	name := fmt.Sprintf("audit-%s.log", date)
	if suffix > 0 {
		name = fmt.Sprintf("audit-%s-%d.log", date, suffix)
	}
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	if s.currentFile != nil {
		_ = s.currentFile.Close()
	}
	s.currentFile = f
	s.currentDate = date
	s.currentSize = size
	s.currentSuffix = suffix
	return nil
}

// listFiles returns all audit files in chronological order.
func (s *FileStore) listFiles() ([]auditFileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read audit directory: %w", err)
	}
	var files []auditFileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, ok := parseAuditFilename(e.Name()); ok {
			files = append(files, info)
		}
	}
	sortAuditFiles(files)
	return files, nil
}

// readFile parses one audit file, skipping malformed lines.
func (s *FileStore) readFile(path string) ([]audit.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []audit.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// cleanupExpired removes audit files older than the retention window.
// Caller must hold s.mu (or be in the constructor).
func (s *FileStore) cleanupExpired() {
	files, err := s.listFiles()
	if err != nil {
		s.logger.Warn("audit retention cleanup failed", "error", err)
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays).Format("2006-01-02")
	for _, f := range files {
		if f.date < cutoff {
			if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
				s.logger.Warn("failed to remove expired audit file", "file", f.name, "error", err)
			} else {
				s.logger.Info("removed expired audit file", "file", f.name)
			}
		}
	}
}
