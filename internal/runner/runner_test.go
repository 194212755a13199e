package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/lock"
	"github.com/hochfrequenz/task-orchestrator/internal/memprobe"
	"github.com/hochfrequenz/task-orchestrator/internal/notify"
)

type mockStore struct {
	mu      sync.Mutex
	runs    map[int64]domain.Run
	saves   []domain.Run
	nextID  int64
	failOn  int // 1-based save call that fails, 0 = never
	saveErr error
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[int64]domain.Run)}
}

func (m *mockStore) Save(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn > 0 && len(m.saves)+1 == m.failOn {
		m.saves = append(m.saves, *run)
		return m.saveErr
	}
	if run.ID == 0 {
		m.nextID++
		run.ID = m.nextID
	}
	m.saves = append(m.saves, *run)
	m.runs[run.ID] = *run
	return nil
}

func (m *mockStore) Load(_ context.Context, id int64) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &r, nil
}

func (m *mockStore) ListRunning(context.Context) ([]*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Run
	for _, r := range m.runs {
		if r.FinishAt == nil {
			out = append(out, &r)
		}
	}
	return out, nil
}

type fakeTask struct {
	calls        []string
	prepareErr   error
	runErr       error
	dismantleErr error
	runPanic     bool
	empty        bool
	onPrepare    func(ctx context.Context, c *Controller) error
	onRun        func(ctx context.Context, c *Controller) error
}

func (f *fakeTask) Prepare(ctx context.Context, c *Controller) error {
	f.calls = append(f.calls, "prepare")
	if f.onPrepare != nil {
		if err := f.onPrepare(ctx, c); err != nil {
			return err
		}
	}
	return f.prepareErr
}

func (f *fakeTask) Run(ctx context.Context, c *Controller) error {
	f.calls = append(f.calls, "run")
	if f.runPanic {
		panic("index out of range")
	}
	if f.onRun != nil {
		if err := f.onRun(ctx, c); err != nil {
			return err
		}
	}
	return f.runErr
}

func (f *fakeTask) Dismantle(_ context.Context, _ *Controller, success bool) error {
	f.calls = append(f.calls, fmt.Sprintf("dismantle(%v)", success))
	return f.dismantleErr
}

func (f *fakeTask) IsEmptyRun() bool { return f.empty }

type capturingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *capturingNotifier) Send(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

// sequenceProbe returns the given values in order, repeating the last one
type sequenceProbe struct {
	mu     sync.Mutex
	values []int64
}

func (p *sequenceProbe) CurrentMB() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.values[0]
	if len(p.values) > 1 {
		p.values = p.values[1:]
	}
	return v
}

type testEnv struct {
	cfg      *config.Config
	store    *mockStore
	locks    *lock.Coordinator
	notifier *capturingNotifier
	runner   *Runner
}

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.General.LockDir = t.TempDir()
	cfg.General.LogDir = ""
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		cfg:      cfg,
		store:    newMockStore(),
		locks:    lock.New(cfg.General.LockDir),
		notifier: &capturingNotifier{},
	}
	r, err := New(Options{
		Config:     cfg,
		Repository: env.store,
		Locks:      env.locks,
		Notifier:   env.notifier,
		Memory:     memprobe.Static(0),
		Now:        func() time.Time { return fixedNow },
		PID:        4242,
	})
	if err != nil {
		t.Fatal(err)
	}
	env.runner = r
	return env
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("New without config = %v", err)
	}
	if _, err := New(Options{Config: config.Default()}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("New without repository = %v", err)
	}
}

func TestCatalog(t *testing.T) {
	cat := NewCatalog()
	cat.Register("reconcile", func(*config.Config, string) (Task, error) { return &fakeTask{}, nil })
	cat.RegisterType("file_import", func(_ *config.Config, name string) (Task, error) {
		if name == "broken" {
			return nil, errors.New("bad settings")
		}
		return &fakeTask{}, nil
	})

	cfg := config.Default()
	cfg.Tasks = map[string]map[string]config.Section{
		"import-orders": {"settings": {"type": "file_import"}},
		"broken":        {"settings": {"type": "file_import"}},
		"custom":        {"settings": {"type": "unknown"}},
	}

	if _, err := cat.Resolve(cfg, "reconcile"); err != nil {
		t.Errorf("Resolve(reconcile) = %v", err)
	}
	if _, err := cat.Resolve(cfg, "import-orders"); err != nil {
		t.Errorf("Resolve(import-orders) = %v", err)
	}
	if _, err := cat.Resolve(cfg, "broken"); err == nil {
		t.Error("factory errors should be returned")
	}
	if _, err := cat.Resolve(cfg, "custom"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Resolve(custom) = %v, want ErrUnknownTask", err)
	}
	if _, err := cat.Resolve(cfg, "nothing"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Resolve(nothing) = %v, want ErrUnknownTask", err)
	}

	names := cat.Names(cfg)
	want := []string{"broken", "import-orders", "reconcile"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names = %v, want %v", names, want)
			break
		}
	}
}

func TestExecute(t *testing.T) {
	env := newTestEnv(t, nil)
	task := &fakeTask{}
	env.runner.Catalog().Register("import-orders", func(*config.Config, string) (Task, error) { return task, nil })

	c, err := env.runner.Execute(context.Background(), InitOptions{TaskName: "import-orders"})
	if err != nil {
		t.Fatal(err)
	}
	if c.StoreCode() != "admin" {
		t.Errorf("StoreCode = %q, want admin", c.StoreCode())
	}
	if c.TaskID() != "2024-03-01_10-00-00" {
		t.Errorf("TaskID = %q", c.TaskID())
	}
	if !c.Success() {
		t.Errorf("run failed: %v", c.Failures())
	}

	if _, err := env.runner.Execute(context.Background(), InitOptions{TaskName: "missing"}); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Execute(missing) = %v", err)
	}
}
