//go:build !integration

package client_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sri-invoice-subscription/internal/client"
	"sri-invoice-subscription/internal/domain/model"
)

type fakeSource struct {
	views []*client.LedgerView
	err   error
	calls int
}

func (f *fakeSource) Ledger(context.Context) (*client.LedgerView, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := f.views[min(f.calls, len(f.views)-1)]
	f.calls++
	return v, nil
}

func TestMirror(t *testing.T) {
	ctx := context.Background()

	t.Run("should overwrite the cache with every pull", func(t *testing.T) {
		// --- Arrange ---
		src := &fakeSource{views: []*client.LedgerView{
			{Ledger: model.LedgerSnapshot{PlanID: model.PlanBasic, CreditsUsed: 10}},
			{Ledger: model.LedgerSnapshot{PlanID: model.PlanBasic, CreditsUsed: 4}},
		}}
		store := client.NewFileStore(filepath.Join(t.TempDir(), "state", "ledger.json"))
		m := client.NewMirror(src, store)

		// --- Act ---
		if _, err := m.Pull(ctx); err != nil {
			t.Fatalf("first pull: %v", err)
		}
		if _, err := m.Pull(ctx); err != nil {
			t.Fatalf("second pull: %v", err)
		}
		got, err := m.Cached(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("cached: %v", err)
		}
		if got.Ledger.CreditsUsed != 4 {
			t.Errorf("expected the server value 4 to win, got %d", got.Ledger.CreditsUsed)
		}
		if got.PulledAt.IsZero() {
			t.Error("PulledAt not set")
		}
	})

	t.Run("should keep the old cache when the pull fails", func(t *testing.T) {
		// --- Arrange ---
		store := client.NewMemoryStore()
		_ = store.Save(ctx, &client.Snapshot{Ledger: model.LedgerSnapshot{PlanID: model.PlanProfessional}, PulledAt: time.Now()})
		m := client.NewMirror(&fakeSource{err: errors.New("offline")}, store)

		// --- Act ---
		_, err := m.Pull(ctx)
		cached, cerr := m.Cached(ctx)

		// --- Assert ---
		if err == nil {
			t.Fatal("expected pull error")
		}
		if cerr != nil || cached.Ledger.PlanID != model.PlanProfessional {
			t.Errorf("cache changed: %+v %v", cached, cerr)
		}
	})

	t.Run("should report ErrNoSnapshot before the first pull", func(t *testing.T) {
		for name, store := range map[string]client.Store{
			"memory": client.NewMemoryStore(),
			"file":   client.NewFileStore(filepath.Join(t.TempDir(), "missing.json")),
		} {
			if _, err := store.Load(ctx); !errors.Is(err, client.ErrNoSnapshot) {
				t.Errorf("%s: expected ErrNoSnapshot, got %v", name, err)
			}
		}
	})
}
