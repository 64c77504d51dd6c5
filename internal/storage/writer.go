package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Agate-DB/Carnelia-Collab/internal/metrics"
	"github.com/Agate-DB/Carnelia-Collab/internal/utils"
)

// SnapshotSource fetches the latest content of a document at write time,
// so a coalesced flush always persists the newest state.
type SnapshotSource func() (string, error)

const (
	defaultFlushInterval = 200 * time.Millisecond
	mirrorTTL            = 24 * time.Hour
	mirrorKeyPrefix      = "carnelia:snapshot:"
)

// Writer persists whole-file document snapshots under
// <data-dir>/<room>/<doc>. Writes are best effort and asynchronous:
// mutations mark a document dirty and the flush loop converges shortly
// after. An optional redis mirror keeps the latest snapshot available to
// other services.
type Writer struct {
	log      *utils.Logger
	dataDir  string
	interval time.Duration
	rdb      *redis.Client

	mu    sync.Mutex
	dirty map[docKey]SnapshotSource
}

type docKey struct {
	room string
	doc  string
}

func NewWriter(log *utils.Logger, dataDir string) *Writer {
	return &Writer{
		log:      log,
		dataDir:  dataDir,
		interval: defaultFlushInterval,
		dirty:    make(map[docKey]SnapshotSource),
	}
}

// SetMirror enables mirroring snapshots into redis alongside the files.
func (w *Writer) SetMirror(rdb *redis.Client) { w.rdb = rdb }

// Load reads the persisted snapshot of a document. A document that was
// never written loads as empty.
func (w *Writer) Load(room, doc string) (string, error) {
	data, err := os.ReadFile(w.docPath(room, doc))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarkDirty schedules a document for the next flush. Repeated marks
// before the flush coalesce.
func (w *Writer) MarkDirty(room, doc string, src SnapshotSource) {
	w.mu.Lock()
	w.dirty[docKey{room: room, doc: doc}] = src
	w.mu.Unlock()
}

// Run drives the flush loop until ctx is done, then flushes once more so
// shutdown does not lose the last snapshots.
func (w *Writer) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.Flush()
		case <-ctx.Done():
			w.Flush()
			return
		}
	}
}

// Flush writes every dirty document now.
func (w *Writer) Flush() {
	w.mu.Lock()
	pending := w.dirty
	w.dirty = make(map[docKey]SnapshotSource)
	w.mu.Unlock()

	for key, src := range pending {
		text, err := src()
		if err != nil {
			metrics.SnapshotWriteFailures.Inc()
			w.log.Error("snapshot read failed", "room", key.room, "doc", key.doc, "error", err.Error())
			continue
		}
		w.write(key.room, key.doc, text)
	}
}

func (w *Writer) write(room, doc, text string) {
	path := w.docPath(room, doc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		metrics.SnapshotWriteFailures.Inc()
		w.log.Error("snapshot mkdir failed", "room", room, "doc", doc, "error", err.Error())
		return
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		metrics.SnapshotWriteFailures.Inc()
		w.log.Error("snapshot write failed", "room", room, "doc", doc, "error", err.Error())
		return
	}
	metrics.SnapshotWrites.Inc()

	if w.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := mirrorKeyPrefix + sanitizeComponent(room) + "/" + sanitizeComponent(doc)
		if err := w.rdb.Set(ctx, key, text, mirrorTTL).Err(); err != nil {
			w.log.Warn("snapshot mirror failed", "room", room, "doc", doc, "error", err.Error())
		}
	}
}

func (w *Writer) docPath(room, doc string) string {
	return filepath.Join(w.dataDir, sanitizeComponent(room), sanitizeComponent(doc))
}

// sanitizeComponent keeps room/doc names from escaping the data dir.
func sanitizeComponent(input string) string {
	out := make([]rune, 0, len(input))
	for _, ch := range input {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '.':
			out = append(out, ch)
		default:
			out = append(out, '_')
		}
	}
	s := string(out)
	if s == "" || s == "." || s == ".." {
		return "untitled"
	}
	return s
}
