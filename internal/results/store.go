// Package results owns the per-job result files on disk and the lock
// table that coordinates concurrent access to them.
//
// Lifecycle of one job's entry:
//
//	Register(id)  - insert a fresh mutex under id, write {"status":"running"}
//	Finalize(id)  - under that mutex overwrite with the terminal document,
//	                then drop the entry from the table
//
// An entry being present in the table means the job is pending or
// executing; absence for an id that was ever issued means the file is
// terminal and immutable. Readers that find no entry therefore read the
// file without any lock, and readers that find one hold it across the
// read so the single running->done overwrite can never be observed torn.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/le-stats-sportif/webserver/pkg/types"
)

// ErrNotFound reports that no result file exists for the id.
var ErrNotFound = errors.New("result not found")

// Store manages the result directory and the per-job lock table.
type Store struct {
	dir string

	mu    sync.Mutex // guards locks map membership only
	locks map[types.JobID]*sync.Mutex
}

// New wipes dir (results do not survive restarts) and returns a store
// rooted there.
func New(dir string) (*Store, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear result dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result dir: %w", err)
	}
	return &Store{
		dir:   dir,
		locks: make(map[types.JobID]*sync.Mutex),
	}, nil
}

// Path returns the result file path for id.
func (s *Store) Path(id types.JobID) string {
	return filepath.Join(s.dir, strconv.FormatInt(int64(id), 10)+".json")
}

// Register inserts the lock entry for id and writes the in-flight
// document under it. It must complete before the id is handed back to
// the client, so a later poll observes at worst "running", never
// "missing".
func (s *Store) Register(id types.JobID) error {
	entry := &sync.Mutex{}

	s.mu.Lock()
	s.locks[id] = entry
	s.mu.Unlock()

	entry.Lock()
	defer entry.Unlock()
	if err := os.WriteFile(s.Path(id), types.RunningDoc(), 0o644); err != nil {
		return fmt.Errorf("failed to write running file for job %d: %w", id, err)
	}
	return nil
}

// Finalize overwrites the result file with the terminal document and
// removes the lock entry. After removal the file is never written again,
// which is what makes lock-free reads of terminal results safe.
func (s *Store) Finalize(id types.JobID, data json.RawMessage) error {
	doc, err := types.DoneDoc(data)
	if err != nil {
		return fmt.Errorf("failed to encode result for job %d: %w", id, err)
	}

	s.mu.Lock()
	entry, ok := s.locks[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %d has no lock entry: %w", id, ErrNotFound)
	}

	entry.Lock()
	writeErr := os.WriteFile(s.Path(id), doc, 0o644)
	entry.Unlock()
	if writeErr != nil {
		return fmt.Errorf("failed to write result for job %d: %w", id, writeErr)
	}

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	return nil
}

// Read returns the current state of id's result. Terminal files are read
// without locks; in-flight files are read under the entry mutex. Data is
// non-nil only for done results.
func (s *Store) Read(id types.JobID) (types.JobState, json.RawMessage, error) {
	s.mu.Lock()
	entry, inFlight := s.locks[id]
	s.mu.Unlock()

	var raw []byte
	var err error
	if inFlight {
		entry.Lock()
		raw, err = os.ReadFile(s.Path(id))
		entry.Unlock()
	} else {
		raw, err = os.ReadFile(s.Path(id))
	}
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("failed to read result for job %d: %w", id, err)
	}

	var doc types.ResultDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", nil, fmt.Errorf("corrupt result file for job %d: %w", id, err)
	}
	return doc.Status, doc.Data, nil
}

// Contains reports whether id currently has a lock entry, i.e. the job
// is still pending or executing.
func (s *Store) Contains(id types.JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[id]
	return ok
}
