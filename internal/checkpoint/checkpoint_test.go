package checkpoint

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/khanglvm/tool-hub-search/internal/storage"
)

func newSQLiteStore(t *testing.T, opts ...Option) Store {
	t.Helper()
	st := storage.NewStorage(":memory:", nil)
	if err := st.Init(); err != nil {
		t.Fatalf("storage Init() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSQLiteStore(st.DB(), opts...)
}

func stores(t *testing.T, opts ...Option) map[string]func(t *testing.T) Store {
	all := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(opts...) },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t, opts...) },
	}
	if url := os.Getenv(PostgresURLEnv); url != "" {
		all["postgres"] = func(t *testing.T) Store {
			s, err := NewPostgresStore(context.Background(), url, opts...)
			if err != nil {
				t.Fatalf("NewPostgresStore() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}
	}
	return all
}

func TestStoreAppendAndRead(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			thread := "thread-" + t.Name()

			if _, ok, err := s.Get(ctx, thread); err != nil || ok {
				t.Fatalf("Get() on empty thread = %v, %v", ok, err)
			}

			for _, state := range []string{"analyze", "semantic", "finalize"} {
				if err := s.Put(ctx, thread, []byte(state)); err != nil {
					t.Fatalf("Put(%s) error = %v", state, err)
				}
			}
			if err := s.Put(ctx, thread+"-other", []byte("other")); err != nil {
				t.Fatalf("Put() other thread error = %v", err)
			}

			latest, ok, err := s.Get(ctx, thread)
			if err != nil || !ok {
				t.Fatalf("Get() = %v, %v", ok, err)
			}
			if string(latest.State) != "finalize" || latest.Seq != 3 {
				t.Errorf("latest = seq %d %q, want seq 3 finalize", latest.Seq, latest.State)
			}

			list, err := s.List(ctx, thread)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("List() returned %d checkpoints, want 3", len(list))
			}
			for i, cp := range list {
				if cp.Seq != int64(i+1) {
					t.Errorf("list[%d].Seq = %d", i, cp.Seq)
				}
				if cp.ThreadID != thread {
					t.Errorf("list[%d].ThreadID = %q", i, cp.ThreadID)
				}
			}
			if string(list[0].State) != "analyze" {
				t.Errorf("oldest state = %q", list[0].State)
			}
		})
	}
}

func TestStoreTrimsOldestSnapshots(t *testing.T) {
	for name, open := range stores(t, WithMaxPerThread(2)) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			thread := "trim-" + t.Name()

			for _, state := range []string{"analyze", "semantic", "finalize"} {
				if err := s.Put(ctx, thread, []byte(state)); err != nil {
					t.Fatalf("Put(%s) error = %v", state, err)
				}
			}

			list, err := s.List(ctx, thread)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("List() returned %d checkpoints, want 2", len(list))
			}
			if list[0].Seq != 2 || list[1].Seq != 3 {
				t.Errorf("kept seqs = %d, %d, want 2, 3", list[0].Seq, list[1].Seq)
			}

			latest, ok, err := s.Get(ctx, thread)
			if err != nil || !ok {
				t.Fatalf("Get() = %v, %v", ok, err)
			}
			if string(latest.State) != "finalize" || latest.Seq != 3 {
				t.Errorf("latest = seq %d %q, want seq 3 finalize", latest.Seq, latest.State)
			}

			if err := s.Put(ctx, thread, []byte("next")); err != nil {
				t.Fatalf("Put() after trim error = %v", err)
			}
			latest, _, _ = s.Get(ctx, thread)
			if latest.Seq != 4 {
				t.Errorf("seq after trim = %d, want 4", latest.Seq)
			}
		})
	}
}

func TestWithMaxPerThreadDefault(t *testing.T) {
	if got := buildOptions(nil).maxPerThread; got != DefaultMaxPerThread {
		t.Errorf("default cap = %d, want %d", got, DefaultMaxPerThread)
	}
	if got := buildOptions([]Option{WithMaxPerThread(0)}).maxPerThread; got != DefaultMaxPerThread {
		t.Errorf("cap with 0 = %d, want default", got)
	}
	if got := buildOptions([]Option{WithMaxPerThread(7)}).maxPerThread; got != 7 {
		t.Errorf("cap = %d, want 7", got)
	}
}

func TestMemoryStoreIsolatesState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	state := []byte("original")
	if err := s.Put(ctx, DefaultThread, state); err != nil {
		t.Fatal(err)
	}
	state[0] = 'X'

	cp, _, _ := s.Get(ctx, DefaultThread)
	if string(cp.State) != "original" {
		t.Errorf("stored state mutated: %q", cp.State)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Close()

	if err := s.Put(ctx, DefaultThread, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Put() after Close error = %v, want ErrClosed", err)
	}
	if _, _, err := s.Get(ctx, DefaultThread); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{}, nil)
	if err != nil {
		t.Fatalf("Open() default error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("default backend = %T, want *MemoryStore", s)
	}

	if _, err := Open(ctx, Config{Backend: "sqlite"}, nil); err == nil {
		t.Error("Open(sqlite) without db expected error")
	}
	if _, err := Open(ctx, Config{Backend: "redis"}, nil); err == nil {
		t.Error("Open() unknown backend expected error")
	}

	t.Setenv(PostgresURLEnv, "")
	if _, err := Open(ctx, Config{Backend: "postgres"}, nil); err == nil {
		t.Error("Open(postgres) without URL expected error")
	}
}
