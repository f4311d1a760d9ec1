package app

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/layout"
	"github.com/klabast/wb-services/abfall-display/internal/logger"
	"github.com/klabast/wb-services/abfall-display/internal/state"
	"github.com/spf13/afero"
)

type fakeClient struct {
	mu       sync.Mutex
	results  []error
	schedule Schedule
	calls    int
}

func (c *fakeClient) Fetch(ctx context.Context, address string) (Schedule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.results) > 0 {
		err := c.results[0]
		c.results = c.results[1:]
		if err != nil {
			return Schedule{}, err
		}
	}
	return c.schedule, nil
}

type fakeSink struct {
	pushes int
	err    error
	last   *image.Paletted
}

func (s *fakeSink) Push(ctx context.Context, img *image.Paletted) error {
	if s.err != nil {
		return s.err
	}
	s.pushes++
	s.last = img
	return nil
}

type fakeRecorder struct {
	records []RefreshRecord
	err     error
}

func (r *fakeRecorder) Record(ctx context.Context, rec RefreshRecord) error {
	r.records = append(r.records, rec)
	return r.err
}

type failingStore struct {
	*state.Store
	saveErr error
}

func (s failingStore) Save(st state.State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(st)
}

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func testSchedule() Schedule {
	return Schedule{Events: []PickupEvent{
		{Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), Types: []string{"Papir", "Restaffald"}},
		{Date: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), Types: []string{"Glas"}},
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "013165"
	cfg.Location = time.UTC
	cfg.MaxRetries = 3
	cfg.FetchTimeout = time.Second
	cfg.Backoff = BackoffPolicy{Base: 10 * time.Millisecond, Factor: 2, Ceiling: 100 * time.Millisecond}
	return cfg
}

type harness struct {
	orch   *Orchestrator
	client *fakeClient
	sink   *fakeSink
	store  *state.Store
	log    *logger.MockLogger
	sleeps []time.Duration
}

func newHarness(t *testing.T, fs afero.Fs, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		client: &fakeClient{schedule: testSchedule()},
		sink:   &fakeSink{},
		store:  state.NewStore(fs, "/var/lib/abfall/state.json"),
		log:    logger.NewMockLogger(),
	}
	base := []Option{
		WithFonts([]layout.Font{layout.BasicFont()}),
		WithClock(func() time.Time { return testNow }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}),
	}
	orch, err := New(testConfig(), h.client, h.store, h.sink, h.log, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
	return h
}

func TestTickIdempotent(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	ctx := context.Background()

	first := h.orch.Tick(ctx, false)
	if first.Err != nil || !first.Pushed || first.Phase != PhasePersisting {
		t.Fatalf("first tick = %+v", first)
	}
	second := h.orch.Tick(ctx, false)
	if second.Err != nil || second.Pushed || second.Phase != PhaseNoOp {
		t.Fatalf("second tick = %+v", second)
	}
	if h.sink.pushes != 1 {
		t.Errorf("pushes = %d, want 1", h.sink.pushes)
	}

	st, err := h.store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.LastPickupDate != "2024-06-03" || strings.Join(st.LastTypes, ",") != "Restaffald,Papir" {
		t.Errorf("persisted state = %+v", st)
	}
}

func TestTickSurvivesRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	h := newHarness(t, fs)
	h.orch.Tick(context.Background(), false)

	restarted := newHarness(t, fs)
	res := restarted.orch.Tick(context.Background(), false)
	if res.Phase != PhaseNoOp || restarted.sink.pushes != 0 {
		t.Errorf("after restart: phase %s, pushes %d", res.Phase, restarted.sink.pushes)
	}
}

func TestTickForceRedraws(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	h.orch.Tick(context.Background(), false)
	res := h.orch.Tick(context.Background(), true)
	if !res.Pushed || h.sink.pushes != 2 {
		t.Errorf("forced tick: pushed %v, pushes %d", res.Pushed, h.sink.pushes)
	}
}

func TestTickRetriesTransient(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	h.client.results = []error{Transient(errors.New("timeout")), Transient(errors.New("503"))}

	res := h.orch.Tick(context.Background(), false)
	if res.Err != nil || res.Attempts != 3 || !res.Pushed {
		t.Fatalf("tick = %+v", res)
	}
	if _, warnings, errs := h.log.Counts(); warnings != 2 || errs != 0 {
		t.Errorf("warnings = %d errors = %d, want 2 and 0", warnings, errs)
	}
	if len(h.sleeps) != 2 || h.sleeps[1] < h.sleeps[0] {
		t.Errorf("backoff sleeps = %v", h.sleeps)
	}
}

func TestTickRetriesExhausted(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	h.client.results = []error{
		Transient(errors.New("a")), Transient(errors.New("b")), Transient(errors.New("c")),
	}

	res := h.orch.Tick(context.Background(), false)
	if res.Phase != PhaseSkip || !errors.Is(res.Err, ErrRetriesExhausted) {
		t.Fatalf("tick = %+v", res)
	}
	if res.Attempts != 3 || h.client.calls != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", res.Attempts, h.client.calls)
	}
	if h.sink.pushes != 0 {
		t.Error("display touched after failed fetch")
	}
	if _, _, errs := h.log.Counts(); errs != 1 {
		t.Errorf("errors logged = %d, want 1", errs)
	}
	if h.orch.State().HasContent() {
		t.Error("state changed after failed fetch")
	}
}

func TestTickFatalNotRetried(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	h.client.results = []error{Fatal(errors.New("400 bad request"))}

	res := h.orch.Tick(context.Background(), false)
	if res.Phase != PhaseSkip || !errors.Is(res.Err, ErrFatalFetch) {
		t.Fatalf("tick = %+v", res)
	}
	if h.client.calls != 1 || len(h.sleeps) != 0 {
		t.Errorf("calls = %d sleeps = %d, want 1 and 0", h.client.calls, len(h.sleeps))
	}
}

func TestTickUnclassifiedErrorIsFatal(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	h.client.results = []error{errors.New("boom")}

	res := h.orch.Tick(context.Background(), false)
	if res.Phase != PhaseSkip || h.client.calls != 1 {
		t.Fatalf("tick = %+v, calls = %d", res, h.client.calls)
	}
}

func TestTickPushFailureNotPersisted(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := &fakeRecorder{}
	h := newHarness(t, fs, WithRecorder(rec))
	h.sink.err = errors.New("spi busy")

	res := h.orch.Tick(context.Background(), false)
	if res.Phase != PhaseFailed || !errors.Is(res.Err, ErrDisplayPush) {
		t.Fatalf("tick = %+v", res)
	}
	if ok, _ := afero.Exists(fs, h.store.Path()); ok {
		t.Error("state persisted after failed push")
	}

	h.sink.err = nil
	res = h.orch.Tick(context.Background(), false)
	if !res.Pushed || h.sink.pushes != 1 {
		t.Errorf("retry tick = %+v", res)
	}
	if len(rec.records) != 2 || rec.records[0].Err == nil || rec.records[1].Err != nil {
		t.Errorf("ledger records = %+v", rec.records)
	}
}

func TestTickSaveFailureKeepsMemoryState(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	h.orch.store = failingStore{Store: h.store, saveErr: errors.New("disk full")}

	res := h.orch.Tick(context.Background(), false)
	if !res.Pushed || res.Err == nil {
		t.Fatalf("tick = %+v", res)
	}
	res = h.orch.Tick(context.Background(), false)
	if res.Phase != PhaseNoOp || h.sink.pushes != 1 {
		t.Errorf("second tick phase %s, pushes %d", res.Phase, h.sink.pushes)
	}
}

func TestCorruptStateTreatedAsAbsent(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/var/lib/abfall", 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/var/lib/abfall/state.json", []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, fs)

	res := h.orch.Tick(context.Background(), false)
	if !res.Pushed {
		t.Fatalf("tick = %+v", res)
	}
	if _, warnings, _ := h.log.Counts(); warnings != 1 {
		t.Errorf("warnings = %d, want 1", warnings)
	}
	if _, err := h.store.Load(); err != nil {
		t.Errorf("state not rewritten: %v", err)
	}
}

func TestRecorderFailureIsWarning(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("database is locked")}
	h := newHarness(t, afero.NewMemMapFs(), WithRecorder(rec))

	res := h.orch.Tick(context.Background(), false)
	if res.Err != nil || !res.Pushed {
		t.Fatalf("tick = %+v", res)
	}
	if _, warnings, _ := h.log.Counts(); warnings != 1 {
		t.Errorf("warnings = %d, want 1", warnings)
	}
	if rec.records[0].PickupDate != "2024-06-03" || rec.records[0].Hash == "" {
		t.Errorf("record = %+v", rec.records[0])
	}
}

func TestRunForeverStopsBetweenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, afero.NewMemMapFs())
	ticks := 0
	h.orch.sleep = func(c context.Context, d time.Duration) error {
		ticks++
		if ticks == 2 {
			cancel()
		}
		return c.Err()
	}

	if err := h.orch.RunForever(ctx); err != nil {
		t.Fatalf("RunForever() error = %v", err)
	}
	if h.client.calls != 2 {
		t.Errorf("fetches = %d, want 2", h.client.calls)
	}
	if h.sink.pushes != 1 {
		t.Errorf("pushes = %d, want 1", h.sink.pushes)
	}
}

func TestTickIgnoresCancellation(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.orch.Tick(context.WithoutCancel(ctx), false)
	if !res.Pushed {
		t.Errorf("tick under a detached context = %+v", res)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Address = ""
	if _, err := New(cfg, &fakeClient{}, state.NewStore(afero.NewMemMapFs(), ""), &fakeSink{}, nil); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestRenderFitsCanvas(t *testing.T) {
	h := newHarness(t, afero.NewMemMapFs())
	c := FormatContent(testSchedule(), testNow, time.UTC)
	img, plan, err := h.orch.Render(c)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, CanvasWidth, CanvasHeight) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if len(plan.Lines) < 2 || plan.Lines[0].Role != layout.RoleHeader {
		t.Errorf("plan = %s", plan)
	}
}

func TestPreviewLeavesDisplayAndState(t *testing.T) {
	fs := afero.NewMemMapFs()
	h := newHarness(t, fs)

	content, img, _, err := h.orch.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if content.DateKey() != "2024-06-03" || img == nil {
		t.Errorf("preview content = %+v", content)
	}
	if h.sink.pushes != 0 {
		t.Error("preview pushed to the display")
	}
	if ok, _ := afero.Exists(fs, h.store.Path()); ok {
		t.Error("preview persisted state")
	}
}
