package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"tenant-authz/internal/audit/domain"
	"tenant-authz/internal/authz"
)

// stallingRepo blocks every Create until release is closed or the write context ends.
type stallingRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	started chan struct{}
	release chan struct{}
}

func newStallingRepo() *stallingRepo {
	return &stallingRepo{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *stallingRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, a)
	return nil
}

func (s *stallingRepo) ListByOrg(context.Context, string, int32, int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (s *stallingRepo) written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type countingDrops struct {
	mu sync.Mutex
	n  int
}

func (c *countingDrops) RecordAuditDropped(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func TestAsyncWriter_WritesInBackground(t *testing.T) {
	repo := &mockAuditRepo{}
	w := NewAsyncWriter(repo, 4, quietLogger())

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := w.Create(context.Background(), &domain.AuditLog{ID: id}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(repo.entries) != 3 || repo.entries[0].ID != "a1" || repo.entries[2].ID != "a3" {
		t.Errorf("written = %+v, want a1..a3 in order", repo.entries)
	}
	if w.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", w.Dropped())
	}
}

func TestAsyncWriter_FullQueueDrops(t *testing.T) {
	repo := newStallingRepo()
	drops := &countingDrops{}
	w := NewAsyncWriter(repo, 1, quietLogger(), WithDropRecorder(drops))

	_ = w.Create(context.Background(), &domain.AuditLog{ID: "a1"})
	<-repo.started // the writer holds a1 inside the stalled repository
	_ = w.Create(context.Background(), &domain.AuditLog{ID: "a2"})
	_ = w.Create(context.Background(), &domain.AuditLog{ID: "a3"})

	if w.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", w.Dropped())
	}
	if drops.n != 1 {
		t.Errorf("recorded drops = %d, want 1", drops.n)
	}

	close(repo.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if repo.written() != 2 {
		t.Errorf("written = %d, want 2", repo.written())
	}
}

func TestAsyncWriter_CreateAfterCloseDrops(t *testing.T) {
	w := NewAsyncWriter(&mockAuditRepo{}, 1, quietLogger())
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Create(context.Background(), &domain.AuditLog{ID: "late"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", w.Dropped())
	}
}

func TestAsyncWriter_RejectionsDoNotWaitOnStalledStore(t *testing.T) {
	repo := newStallingRepo()
	w := NewAsyncWriter(repo, 8, quietLogger())
	defer func() {
		close(repo.release)
		_ = w.Close(context.Background())
	}()
	pipeline := authz.NewPipeline(authz.Stages{}, authz.Quota{Limit: 10, WindowSeconds: 60},
		authz.WithLogger(quietLogger()),
		authz.WithAuditor(NewLogger(w, quietLogger(), nil)),
	)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := pipeline.Authorize(context.Background(), authz.Request{Route: "GET /api/v1/me", ClientIP: "10.0.0.1"})
		if err == nil {
			t.Fatal("Authorize without a token should be rejected")
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("3 rejected requests took %v, want them to return without waiting on the audit store", elapsed)
	}
}
