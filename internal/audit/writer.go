package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"tenant-authz/internal/audit/domain"
	auditrepo "tenant-authz/internal/audit/repository"
)

// DefaultQueueSize is the AsyncWriter buffer used when size is not positive.
const DefaultQueueSize = 1024

// DropRecorder counts audit entries discarded because the queue was full.
type DropRecorder interface {
	RecordAuditDropped(ctx context.Context)
}

// AsyncWriter is an audit repository whose Create hands the entry to a bounded queue drained by
// one background writer. Create never waits on the database: when the queue is full the entry is
// dropped and counted. Reads go straight to the wrapped repository.
type AsyncWriter struct {
	repo    auditrepo.Repository
	logger  logrus.FieldLogger
	drops   DropRecorder
	entries chan *domain.AuditLog
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

var _ auditrepo.Repository = (*AsyncWriter)(nil)

// WriterOption configures an AsyncWriter.
type WriterOption func(*AsyncWriter)

// WithDropRecorder sets the metric sink for dropped entries.
func WithDropRecorder(r DropRecorder) WriterOption { return func(w *AsyncWriter) { w.drops = r } }

// NewAsyncWriter starts the background writer over repo. Call Close to drain it.
func NewAsyncWriter(repo auditrepo.Repository, size int, logger logrus.FieldLogger, opts ...WriterOption) *AsyncWriter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	w := &AsyncWriter{
		repo:    repo,
		logger:  logger,
		entries: make(chan *domain.AuditLog, size),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// Create enqueues a for writing. It returns nil even when the entry is dropped; see Dropped.
func (w *AsyncWriter) Create(ctx context.Context, a *domain.AuditLog) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop(ctx)
		return nil
	}
	select {
	case w.entries <- a:
	default:
		w.drop(ctx)
	}
	return nil
}

// ListByOrg reads from the wrapped repository.
func (w *AsyncWriter) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return w.repo.ListByOrg(ctx, orgID, limit, offset)
}

// Dropped returns how many entries were discarded since start.
func (w *AsyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops accepting entries and waits until the queue is written or ctx is done.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.entries)
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) drop(ctx context.Context) {
	n := w.dropped.Add(1)
	if w.drops != nil {
		w.drops.RecordAuditDropped(ctx)
	}
	w.logger.WithField("dropped_total", n).Debug("audit: queue full, entry dropped")
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for a := range w.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.repo.Create(ctx, a); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{"action": a.Action, "org_id": a.OrgID}).
				Warn("audit: failed to write entry")
		}
		cancel()
	}
}
