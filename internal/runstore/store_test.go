package runstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var run domain.Run
	run.Start("admin", "import-orders", "2024-03-01_10-00-00", true, 4242, start)

	if err := store.Save(ctx, &run); err != nil {
		t.Fatal(err)
	}
	if run.ID == 0 {
		t.Fatal("Save should assign an ID")
	}

	got, err := store.Load(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TaskName != "import-orders" || got.StoreCode != "admin" || got.ProcessID != 4242 || !got.Test {
		t.Errorf("loaded run = %+v", got)
	}
	if got.FinishAt != nil {
		t.Error("new run should have no finish time")
	}
	if got.Success {
		t.Error("new run should start unsuccessful")
	}
	if !got.StartAt.Equal(start) {
		t.Errorf("StartAt = %v, want %v", got.StartAt, start)
	}

	run.Finish(12, true, false, start.Add(90*time.Second))
	if err := store.Save(ctx, &run); err != nil {
		t.Fatal(err)
	}

	got, err = store.Load(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishAt == nil || !got.FinishAt.Equal(start.Add(90*time.Second)) {
		t.Errorf("FinishAt = %v", got.FinishAt)
	}
	if !got.Success || got.MaxMemoryUsageMB != 12 {
		t.Errorf("finished run = %+v", got)
	}
	if got.Status() != domain.RunFinished {
		t.Errorf("Status = %s, want finished", got.Status())
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(999) error = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	store := newTestStore(t)
	run := &domain.Run{ID: 77, TaskName: "t", StartAt: time.Now()}
	if err := store.Save(context.Background(), run); !errors.Is(err, ErrNotFound) {
		t.Errorf("Save of unknown id error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []struct {
		task    string
		finish  bool
		success bool
	}{
		{"import-orders", true, true},
		{"import-orders", true, false},
		{"import-customers", false, false},
		{"import-orders", false, false},
	}
	for i, s := range seed {
		var run domain.Run
		run.Start("admin", s.task, "id", false, 1, base.Add(time.Duration(i)*time.Minute))
		if s.finish {
			run.Finish(1, s.success, false, base.Add(time.Duration(i)*time.Minute+time.Second))
		}
		if err := store.Save(ctx, &run); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"all", ListOptions{}, 4},
		{"by task", ListOptions{TaskName: "import-orders"}, 3},
		{"running", ListOptions{Status: domain.RunRunning}, 2},
		{"finished", ListOptions{Status: domain.RunFinished}, 1},
		{"broken", ListOptions{Status: domain.RunBroken}, 1},
		{"running orders", ListOptions{TaskName: "import-orders", Status: domain.RunRunning}, 1},
		{"limit", ListOptions{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != tt.want {
				t.Errorf("got %d runs, want %d", len(runs), tt.want)
			}
		})
	}

	runs, _ := store.ListRuns(ctx, ListOptions{})
	for i := 1; i < len(runs); i++ {
		if runs[i].StartAt.After(runs[i-1].StartAt) {
			t.Errorf("runs not ordered newest first: %v after %v", runs[i].StartAt, runs[i-1].StartAt)
		}
	}

	running, err := store.ListRunning(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range running {
		if !r.IsRunning() {
			t.Errorf("ListRunning returned finished run %d", r.ID)
		}
	}

	names, err := store.TaskNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "import-customers" || names[1] != "import-orders" {
		t.Errorf("TaskNames = %v", names)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}
