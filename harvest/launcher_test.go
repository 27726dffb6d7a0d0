package harvest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitForCompletion(t *testing.T, store *fakeStore) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.completedWith()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("harvest did not complete in time")
}

func TestLauncherRunsJobAsynchronously(t *testing.T) {
	store := newFakeStore(1)
	cat := newFakeCatalog()
	cat.delay = 20 * time.Millisecond
	cat.pages[1] = validPage(5, 5)

	launcher := NewLauncher(store, cat, NewMetrics())
	if err := launcher.Launch(1, "test"); err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	waitForCompletion(t, store)

	completions := store.completedWith()
	if completions[0] != (completion{queryID: 1, total: 5}) {
		t.Fatalf("completions = %+v, want query 1 completed with total 5", completions)
	}

	if err := launcher.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestLauncherCloseWaitsForInFlight(t *testing.T) {
	store := newFakeStore(1)
	cat := newFakeCatalog()
	cat.delay = 50 * time.Millisecond
	cat.pages[1] = validPage(5, 5)

	launcher := NewLauncher(store, cat, NewMetrics())
	if err := launcher.Launch(1, "test"); err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	if err := launcher.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := len(store.completedWith()); got != 1 {
		t.Fatalf("completions after close = %d, want 1", got)
	}
}

func TestLauncherRejectsLaunchAfterClose(t *testing.T) {
	store := newFakeStore(1)
	cat := newFakeCatalog()

	launcher := NewLauncher(store, cat, NewMetrics())
	if err := launcher.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := launcher.Launch(1, "test"); !errors.Is(err, ErrLauncherClosed) {
		t.Fatalf("launch after close = %v, want %v", err, ErrLauncherClosed)
	}
}

func TestLauncherCloseHonorsContext(t *testing.T) {
	store := newFakeStore(1)
	cat := newFakeCatalog()
	cat.delay = 500 * time.Millisecond
	cat.pages[1] = validPage(5, 5)

	launcher := NewLauncher(store, cat, NewMetrics())
	if err := launcher.Launch(1, "test"); err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := launcher.Close(ctx); err == nil {
		t.Fatalf("close should report the expired context")
	}
}
