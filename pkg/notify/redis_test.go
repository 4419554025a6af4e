package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/calsync/pkg/engine"
)

func TestNewNotice(t *testing.T) {
	c := engine.Change{Kind: engine.ChangeDelete, IDs: []string{"a", "b"}, Count: 2, At: 2000}
	n := NewNotice(c)
	if _, err := uuid.Parse(n.ID); err != nil {
		t.Fatalf("notice id %q is not a uuid: %v", n.ID, err)
	}
	if n.Kind != "delete" || n.Count != 2 || n.Watermark != 2000 || len(n.IDs) != 2 {
		t.Fatalf("notice = %+v", n)
	}
	if n.Timestamp.IsZero() {
		t.Fatal("notice timestamp not set")
	}
}

func TestNewRedisPublisher_InvalidURL(t *testing.T) {
	if _, err := NewRedisPublisher("http://localhost:6379", "ch"); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}

func TestNotify_UnreachableServer(t *testing.T) {
	p, err := NewRedisPublisher("redis://127.0.0.1:1/0", "calsync:changes")
	if err != nil {
		t.Fatalf("NewRedisPublisher: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Notify(ctx, engine.Change{Kind: engine.ChangeUpsert, IDs: []string{"a"}, Count: 1}); err == nil {
		t.Fatal("expected publish error against unreachable server")
	}
}
