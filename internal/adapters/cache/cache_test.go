package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/google/uuid"
)

func TestMemorySnapshotStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := NewMemorySnapshotStore(time.Minute)
	s.now = func() time.Time { return now }

	if got, err := s.Get(ctx, "x"); err != nil || got != nil {
		t.Fatalf("Get em store vazio = %v, %v", got, err)
	}
	_ = s.Save(ctx, domain.SessionSnapshot{SessionID: "x", Version: 2, State: domain.StateAwaitingPayment})
	_ = s.Save(ctx, domain.SessionSnapshot{SessionID: "x", Version: 1, State: domain.StateCollectingIdentity})

	got, err := s.Get(ctx, "x")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Version != 2 {
		t.Errorf("versão antiga sobrescreveu a nova: %d", got.Version)
	}

	now = now.Add(2 * time.Minute)
	if got, _ := s.Get(ctx, "x"); got != nil {
		t.Error("snapshot deveria ter expirado")
	}

	_ = s.Save(ctx, domain.SessionSnapshot{SessionID: "y", Version: 1})
	_ = s.Delete(ctx, "y")
	if got, _ := s.Get(ctx, "y"); got != nil {
		t.Error("snapshot deveria ter sido removido")
	}
}

// Requer um Redis real; defina CHECKOUT_TEST_REDIS_URL para rodar.
func TestRedisSnapshotStore(t *testing.T) {
	url := os.Getenv("CHECKOUT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHECKOUT_TEST_REDIS_URL não definido")
	}
	ctx := context.Background()
	client, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	s := NewRedisSnapshotStore(client, time.Minute)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	id := uuid.NewString()
	defer s.Delete(ctx, id)
	want := domain.SessionSnapshot{SessionID: id, Version: 3, State: domain.StatePaid, RemainingSeconds: 42}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.State != want.State || got.Version != want.Version || got.RemainingSeconds != 42 {
		t.Errorf("snapshot = %+v", got)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, id); got != nil {
		t.Error("snapshot deveria ter sido removido")
	}
}

func TestConnectParsesURLAndAddr(t *testing.T) {
	c, err := Connect(context.Background(), "redis://:pw@cache:6380/2")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if opt := c.Options(); opt.Addr != "cache:6380" || opt.DB != 2 || opt.Password != "pw" {
		t.Errorf("opções = %+v", opt)
	}
	c.Close()

	c, err = Connect(context.Background(), "localhost:6379")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.Options().Addr != "localhost:6379" {
		t.Errorf("addr = %s", c.Options().Addr)
	}
	c.Close()

	if _, err := Connect(context.Background(), "redis://localhost:6379/banco"); err == nil {
		t.Error("esperava erro para URL inválida")
	}
}
