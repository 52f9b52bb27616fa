package replica

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	_ "modernc.org/sqlite"

	"github.com/halo-research/halo/config"
	"github.com/halo-research/halo/internal/store"
	"github.com/halo-research/halo/internal/telemetry"
)

// schemaVersion tags the local schema via PRAGMA user_version. A file whose
// tag disagrees is abandoned and recreated under a fresh identity.
const schemaVersion = 3

const localSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    url TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    source_type TEXT NOT NULL,
    math_density_score REAL NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS citations (
    id TEXT PRIMARY KEY,
    source_doc_id TEXT NOT NULL,
    target_doc_id TEXT NOT NULL,
    citation_type TEXT NOT NULL,
    weight REAL NOT NULL,
    created_at TEXT NOT NULL
);`

// Remote is the authoritative-store surface the pull loop reads from.
type Remote interface {
	ListDocumentsCreatedAfter(ctx context.Context, projectID string, after time.Time, limit int) ([]store.Document, error)
	ListCitationsCreatedAfter(ctx context.Context, projectID string, after time.Time, limit int) ([]store.Citation, error)
}

// Session is a disposable per-session local replica: an ephemeral sqlite file
// pulled forward from the remote store, plus an in-memory full-text index.
// Strictly read-only toward the remote; there is no write-back path.
type Session struct {
	projectID string
	path      string
	db        *sql.DB
	index     bleve.Index
	remote    Remote
	cfg       config.ReplicaConfig
	tele      *telemetry.Telemetry
	logger    *log.Logger

	mu            sync.Mutex
	docCheckpoint time.Time
	citCheckpoint time.Time

	resync chan struct{}
	done   chan struct{}
	once   sync.Once
}

// creation is the single in-flight (then resident) session future. Concurrent
// Opens during creation block on done and share the outcome.
type creation struct {
	done chan struct{}
	sess *Session
	err  error
}

var (
	createMu sync.Mutex
	current  *creation
)

// ErrProjectMismatch reports an Open for a different project while a session
// is still live. Callers close the resident session first.
var ErrProjectMismatch = errors.New("replica session open for a different project")

// Open returns the process-wide replica session, creating it on first call.
// Concurrent callers share one creation; Close releases the slot so the next
// session starts from a clean database. One project at a time: opening another
// project while a session lives fails with ErrProjectMismatch.
func Open(ctx context.Context, cfg config.ReplicaConfig, remote Remote, projectID string, tele *telemetry.Telemetry, logger *log.Logger) (*Session, error) {
	createMu.Lock()
	if current != nil {
		c := current
		createMu.Unlock()
		<-c.done
		if c.err != nil {
			return nil, c.err
		}
		if c.sess.projectID != projectID {
			return nil, fmt.Errorf("%w: have %s, requested %s", ErrProjectMismatch, c.sess.projectID, projectID)
		}
		return c.sess, nil
	}
	c := &creation{done: make(chan struct{})}
	current = c
	createMu.Unlock()

	sess, err := create(ctx, cfg, remote, projectID, tele, logger)
	if err != nil {
		// Retry once under a fresh identity; partially created files or a
		// stale schema tag must not poison the next attempt.
		if logger != nil {
			logger.Printf("replica creation failed, retrying with new identity: %v", err)
		}
		sess, err = create(ctx, cfg, remote, projectID, tele, logger)
	}
	c.sess, c.err = sess, err
	close(c.done)
	if err != nil {
		createMu.Lock()
		current = nil
		createMu.Unlock()
		return nil, err
	}
	return sess, nil
}

func create(ctx context.Context, cfg config.ReplicaConfig, remote Remote, projectID string, tele *telemetry.Telemetry, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[SYNC] ", log.LstdFlags)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("halo_%d_%s.db", time.Now().UnixNano(), randSuffix()))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open replica db: %w", err)
	}
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("read schema tag: %w", err)
	}
	switch version {
	case 0:
		if _, err := db.ExecContext(ctx, localSchema); err != nil {
			db.Close()
			os.Remove(path)
			return nil, fmt.Errorf("create local schema: %w", err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
			db.Close()
			os.Remove(path)
			return nil, fmt.Errorf("tag schema: %w", err)
		}
	case schemaVersion:
		// Reusable file from an identical build; keep it.
	default:
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("schema tag mismatch: have %d, want %d", version, schemaVersion)
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("create local index: %w", err)
	}

	s := &Session{
		projectID: projectID,
		path:      path,
		db:        db,
		index:     index,
		remote:    remote,
		cfg:       cfg,
		tele:      tele,
		logger:    logger,
		resync:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go s.pullLoop()
	logger.Printf("replica session open at %s", path)
	return s, nil
}

// ProjectID reports which project this session replicates.
func (s *Session) ProjectID() string { return s.projectID }

// Path is the local database file location.
func (s *Session) Path() string { return s.path }

// Resync requests an immediate out-of-band pull. Safe from any goroutine.
func (s *Session) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// ConsumeFeed watches the store's insert feed and resyncs on rows for this
// project. Returns when the feed closes or the session closes.
func (s *Session) ConsumeFeed(events <-chan store.InsertEvent) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.ProjectID == s.projectID {
				s.Resync()
			}
		}
	}
}

func (s *Session) pullLoop() {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.resync:
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		if _, err := s.Pull(ctx); err != nil {
			s.logger.Printf("pull failed: %v", err)
		}
		cancel()
	}
}

// Close stops the pull loop, destroys the local database and index, and
// frees the package slot for the next session.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.db.Close()
		if rmErr := os.Remove(s.path); rmErr != nil && err == nil {
			err = rmErr
		}
		if idxErr := s.index.Close(); idxErr != nil && err == nil {
			err = idxErr
		}
		createMu.Lock()
		if current != nil && current.sess == s {
			current = nil
		}
		createMu.Unlock()
		s.logger.Printf("replica session closed, removed %s", s.path)
	})
	return err
}

func randSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(b[:])
}
