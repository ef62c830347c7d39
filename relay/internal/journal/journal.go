// Package journal keeps the durable side-channel of the event log: one
// append-only, line-delimited file per resolved call id.
//
// Records are written by a single background goroutine in the order they
// were queued, so each file preserves arrival order. Write failures are
// logged and counted; they never reach the ingest path.
package journal

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/relay/internal/metrics"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

const (
	fileExt       = ".log"
	maxKeyLength  = 128
	maxRecordSize = 4 << 20
)

// ErrQueueFull is recorded when a record cannot be queued for writing.
var ErrQueueFull = errors.New("journal queue full")

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_\-][A-Za-z0-9_.:\-]*$`)

// Writer accepts records for durable storage.
type Writer interface {
	Write(callID string, ev models.Event)
	Stats() Stats
	Close() error
}

// Stats reports journal activity since startup.
type Stats struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Pending int    `json:"pending"`
}

type record struct {
	key string
	ev  models.Event
}

// FileJournal writes records to <dir>/<key>.log.
type FileJournal struct {
	dir    string
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
	queue  chan record
	done   chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
}

// Open creates dir if needed and starts the background writer. buffer is the
// number of records that may wait to be written.
func Open(dir string, buffer int, logger *logging.Logger) (*FileJournal, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	j := &FileJournal{
		dir:    dir,
		logger: logger.With("component", "journal"),
		queue:  make(chan record, buffer),
		done:   make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// Write queues ev for the file of callID. It never blocks; if the queue is
// full or the journal is closed the record is counted as failed.
func (j *FileJournal) Write(callID string, ev models.Event) {
	key := models.ResolveCallID(callID)

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		j.fail(key, os.ErrClosed)
		return
	}

	select {
	case j.queue <- record{key: key, ev: ev}:
		metrics.JournalQueueDepth.Set(float64(len(j.queue)))
	default:
		j.fail(key, ErrQueueFull)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return nil
}

// Stats returns counters for /readyz.
func (j *FileJournal) Stats() Stats {
	return Stats{
		Enabled: true,
		Dir:     j.dir,
		Written: j.written.Load(),
		Failed:  j.failed.Load(),
		Pending: len(j.queue),
	}
}

func (j *FileJournal) run() {
	defer close(j.done)

	for rec := range j.queue {
		metrics.JournalQueueDepth.Set(float64(len(j.queue)))
		if err := appendLine(filepath.Join(j.dir, FileName(rec.key)), rec.ev); err != nil {
			j.fail(rec.key, err)
			continue
		}
		j.written.Add(1)
		metrics.JournalWrites.Inc()
	}
}

func (j *FileJournal) fail(key string, err error) {
	j.failed.Add(1)
	metrics.JournalWriteErrors.Inc()
	j.logger.Error("journal write failed", logging.CallID(key), logging.Error(err))
}

func appendLine(path string, ev models.Event) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	line := make([]byte, 0, len(ev)+1)
	line = append(line, ev...)
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FileName maps a resolved call id to its journal file name. Ids that are not
// plain file names are replaced by a blake3 digest so they cannot escape the
// journal directory.
func FileName(key string) string {
	if len(key) <= maxKeyLength && safeKey.MatchString(key) {
		return key + fileExt
	}
	sum := blake3.Sum256([]byte(key))
	return "call-" + hex.EncodeToString(sum[:]) + fileExt
}

// ReadFile returns the records journaled for callID in write order.
func ReadFile(dir, callID string) ([]models.Event, error) {
	key := models.ResolveCallID(callID)

	f, err := os.Open(filepath.Join(dir, FileName(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal for %s: %w", key, err)
	}
	defer f.Close()

	var events []models.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events = append(events, models.Event(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal for %s: %w", key, err)
	}
	return events, nil
}

// NoOp discards records. Used when the journal is disabled.
type NoOp struct{}

func (NoOp) Write(string, models.Event) {}
func (NoOp) Stats() Stats               { return Stats{} }
func (NoOp) Close() error               { return nil }
