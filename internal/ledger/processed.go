package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	logx "instapost/pkg/logx"
)

// ProcessedStore owns processed.json, the durable idempotency record.
// Append-mostly: entries are added by the scheduler after a publish attempt
// completes and are never rewritten or removed.
type ProcessedStore struct {
	path string
	log  logx.Logger

	mu      sync.Mutex
	corrupt bool
}

func NewProcessedStore(path string, log logx.Logger) *ProcessedStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ProcessedStore{path: path, log: log}
}

func (s *ProcessedStore) Path() string { return s.path }

// Load reads the completed ledger, treating missing or unparsable documents
// as empty (the latter with a warning).
func (s *ProcessedStore) Load() ([]ProcessedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *ProcessedStore) loadLocked() ([]ProcessedEntry, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.corrupt = false
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []ProcessedEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		if !s.corrupt {
			s.log.Warn("processed ledger is unparsable; treating as empty",
				logx.String("path", s.path), logx.Err(err))
		}
		s.corrupt = true
		return nil, nil
	}
	s.corrupt = false
	return entries, nil
}

// Append records a completed publication. A filename may appear at most once
// with a confirmed URL; a duplicate confirmed append indicates a logic error
// upstream and is refused to protect the at-most-once invariant.
func (s *ProcessedStore) Append(e ProcessedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	if e.URL != nil {
		for _, cur := range entries {
			if cur.Filename == e.Filename && cur.URL != nil {
				return fmt.Errorf("processed ledger already confirms %s (%s)", e.Filename, *cur.URL)
			}
		}
	}
	entries = append(entries, e)
	if s.corrupt {
		s.log.Warn("rewriting previously unparsable processed ledger",
			logx.String("path", s.path), logx.Int("entries", len(entries)))
		s.corrupt = false
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, b)
}

// Filenames returns the set of filenames present in the ledger, regardless
// of confirmation state. Used to build the scheduler's handled set and for
// idempotent ingestion.
func (s *ProcessedStore) Filenames() (map[string]struct{}, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Filename] = struct{}{}
	}
	return set, nil
}

// Confirmed returns entries whose publication was confirmed (non-nil URL).
func (s *ProcessedStore) Confirmed() ([]ProcessedEntry, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.URL != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
