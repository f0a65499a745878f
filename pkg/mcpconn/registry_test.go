package mcpconn

import (
	"context"
	"sync"
	"testing"
)

func testSource() mapSource {
	return mapSource{
		"echo-server": {Name: "echo-server", Command: "unused"},
	}
}

func TestRegistryUnknownServerNeverLaunches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := NewRegistry(testSource(), f.registryOptions())
	defer r.CloseAll()

	_, err := r.GetOrCreate(context.Background(), "missing")
	if KindOf(err) != KindUnknownServer {
		t.Fatalf("kind = %q, want %q (err: %v)", KindOf(err), KindUnknownServer, err)
	}
	if got := f.dials.Load(); got != 0 {
		t.Fatalf("dials = %d, want 0", got)
	}
}

func TestRegistryConcurrentCallersShareOneLaunch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := NewRegistry(testSource(), f.registryOptions())
	defer r.CloseAll()

	const n = 8
	var wg sync.WaitGroup
	sessions := make([]*Session, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = r.GetOrCreate(context.Background(), "echo-server")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("GetOrCreate %d: %v", i, errs[i])
		}
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d got a different session", i)
		}
	}
	if got := f.dials.Load(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
}

func TestRegistryReplacesFailedSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := NewRegistry(testSource(), f.registryOptions())
	defer r.CloseAll()

	ctx := context.Background()
	first, err := r.GetOrCreate(ctx, "echo-server")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	f.killServer()
	waitForState(t, first, StateFailed)

	second, err := r.GetOrCreate(ctx, "echo-server")
	if err != nil {
		t.Fatalf("GetOrCreate after failure: %v", err)
	}
	if second == first {
		t.Fatal("registry returned the dead session")
	}
	if _, err := second.Call(ctx, "ping", nil); err != nil {
		t.Fatalf("Call on replacement: %v", err)
	}
	if got := f.dials.Load(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}
}

func TestRegistryInvalidate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := NewRegistry(testSource(), f.registryOptions())
	defer r.CloseAll()

	ctx := context.Background()
	first, err := r.GetOrCreate(ctx, "echo-server")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	r.Invalidate("echo-server")
	if got := first.State(); got != StateClosed {
		t.Fatalf("invalidated session state = %s, want %s", got, StateClosed)
	}

	second, err := r.GetOrCreate(ctx, "echo-server")
	if err != nil {
		t.Fatalf("GetOrCreate after invalidate: %v", err)
	}
	if second == first {
		t.Fatal("registry reused the invalidated session")
	}
	if got := f.dials.Load(); got != 2 {
		t.Fatalf("dials = %d, want 2", got)
	}

	// Unknown names are a no-op.
	r.Invalidate("missing")
}

func TestRegistryCloseAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	source := testSource()
	source["second"] = Descriptor{Name: "second", Command: "unused"}
	r := NewRegistry(source, f.registryOptions())

	ctx := context.Background()
	a, err := r.GetOrCreate(ctx, "echo-server")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := r.GetOrCreate(ctx, "second")
	if err != nil {
		t.Fatalf("GetOrCreate second: %v", err)
	}

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if a.State() != StateClosed || b.State() != StateClosed {
		t.Fatalf("states after CloseAll = %s, %s; want both %s", a.State(), b.State(), StateClosed)
	}
}
