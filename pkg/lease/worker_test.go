package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/crypto"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/storage"
)

func TestExpiryWorkerReapsExpiredLeases(t *testing.T) {
	log.Init(log.Config{Level: log.ErrorLevel})

	b := barrier.New(storage.NewMemoryBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b.Unseal(key)

	manager := New(b, nil)
	ctx := context.Background()
	l, err := manager.Create(ctx, CreateParams{Mount: "db/default/", Path: "creds/a", TTL: -time.Second})
	require.NoError(t, err)

	worker := NewExpiryWorker(manager, 10*time.Millisecond)
	worker.Start()
	defer worker.Stop()

	require.Eventually(t, func() bool {
		_, err := manager.Get(ctx, l.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestExpiryWorkerStopsPromptly(t *testing.T) {
	log.Init(log.Config{Level: log.ErrorLevel})

	b := barrier.New(storage.NewMemoryBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b.Unseal(key)

	worker := NewExpiryWorker(New(b, nil), time.Hour)
	worker.Start()

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
