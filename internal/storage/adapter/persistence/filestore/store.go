// Package filestore is the local fallback used while the remote database is
// unreachable: one JSON object per collection, keyed by document key.
package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
)

const (
	fileExt        = ".json"
	corruptedTag   = ".corrupted."
	migratedSuffix = ".migrated"
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// Document is the contents of one collection file: document key to raw JSON.
type Document map[string]json.RawMessage

// RecoveryOutcome reports what happened when a collection file would not parse.
type RecoveryOutcome int

const (
	// RecoveryNone means the file parsed (or did not exist).
	RecoveryNone RecoveryOutcome = iota
	// RecoveredFromBackup means the file was backed up and a JSON object was
	// salvaged from it and written back.
	RecoveredFromBackup
	// ResetToEmpty means the file was backed up and replaced by an empty object.
	ResetToEmpty
	// RecoveryFailed means the backup or the rewrite failed; the read still
	// returns an empty document.
	RecoveryFailed
)

func (r RecoveryOutcome) String() string {
	switch r {
	case RecoveryNone:
		return "none"
	case RecoveredFromBackup:
		return "salvaged"
	case ResetToEmpty:
		return "reset"
	case RecoveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReadResult is the outcome of reading one collection.
type ReadResult struct {
	Data       Document
	Recovery   RecoveryOutcome
	BackupPath string
}

// Store reads and writes collection files under one directory.
type Store struct {
	dir     string
	logger  logger.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates dir if needed and returns a store rooted there.
func NewStore(dir string, log logger.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Store{
		dir:    dir,
		logger: log.WithComponent("file-store"),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the storage root.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing collection.
func (s *Store) Path(collection string) string {
	return filepath.Join(s.dir, collection+fileExt)
}

func (s *Store) lock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	return l
}

func validateCollection(collection string) error {
	if !collectionNamePattern.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	return nil
}

// Read returns the parsed collection. A missing file is an empty document.
// A corrupted file is backed up and repaired; the outcome is in the result
// and never surfaces as an error. Only I/O failures on a readable path do.
func (s *Store) Read(collection string) (*ReadResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return s.readLocked(collection)
}

func (s *Store) readLocked(collection string) (*ReadResult, error) {
	path := s.Path(collection)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ReadResult{Data: Document{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &ReadResult{Data: Document{}}, nil
	}

	var doc Document
	if err = json.Unmarshal(raw, &doc); err == nil {
		if doc == nil {
			doc = Document{}
		}
		return &ReadResult{Data: doc}, nil
	}
	s.logger.WithFields(map[string]interface{}{
		"collection": collection,
		"path":       path,
	}).Warnf("Collection file is corrupted, recovering: %v", err)

	result := s.recoverLocked(collection, raw)
	s.metrics.FileRecovery(result.Recovery.String())
	return result, nil
}

// recoverLocked backs up raw, then writes back a salvaged object or {}.
func (s *Store) recoverLocked(collection string, raw []byte) *ReadResult {
	path := s.Path(collection)
	backup := path + corruptedTag + strconv.FormatInt(s.now().UnixMilli(), 10)
	log := s.logger.WithFields(map[string]interface{}{"collection": collection, "backup": backup})

	if err := os.WriteFile(backup, raw, 0o644); err != nil {
		log.Errorf("Failed to back up corrupted file: %v", err)
		return &ReadResult{Data: Document{}, Recovery: RecoveryFailed}
	}

	doc, salvaged := salvageObject(raw)
	outcome := RecoveredFromBackup
	if !salvaged {
		doc = Document{}
		outcome = ResetToEmpty
	}

	if err := s.writeLocked(collection, doc); err != nil {
		log.Errorf("Failed to rewrite recovered file: %v", err)
		return &ReadResult{Data: doc, Recovery: RecoveryFailed, BackupPath: backup}
	}

	log.Infof("Recovered corrupted collection file (%s, %d documents)", outcome, len(doc))
	return &ReadResult{Data: doc, Recovery: outcome, BackupPath: backup}
}

// salvageObject finds the first brace-balanced JSON object in raw.
func salvageObject(raw []byte) (Document, bool) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var doc Document
				if err := json.Unmarshal(raw[start:i+1], &doc); err != nil || doc == nil {
					return nil, false
				}
				return doc, true
			}
		}
	}
	return nil, false
}

// Write replaces the collection file. The new contents land via rename, so a
// reader sees either the old or the new file, never a partial one.
func (s *Store) Write(collection string, data Document) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return s.writeLocked(collection, data)
}

func (s *Store) writeLocked(collection string, data Document) error {
	if data == nil {
		data = Document{}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}

	tmp, err := os.CreateTemp(s.dir, collection+fileExt+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", collection, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", collection, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", collection, err)
	}
	if err := os.Rename(tmpName, s.Path(collection)); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", collection, err)
	}
	return nil
}

// Delete removes the collection file. Deleting a missing file is not an error.
func (s *Store) Delete(collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.Path(collection)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", collection, err)
	}
	return nil
}

// Archive renames the collection file to "<collection>.json.migrated" so it
// can be recovered by hand later.
func (s *Store) Archive(collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()

	path := s.Path(collection)
	if err := os.Rename(path, path+migratedSuffix); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to archive %s: %w", collection, err)
	}
	s.logger.WithFields(map[string]interface{}{"collection": collection}).Info("Archived collection file")
	return nil
}

// Update runs fn on the current document and writes the result back while
// holding the collection lock.
func (s *Store) Update(collection string, fn func(Document) error) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()

	res, err := s.readLocked(collection)
	if err != nil {
		return err
	}
	if err := fn(res.Data); err != nil {
		return err
	}
	return s.writeLocked(collection, res.Data)
}
