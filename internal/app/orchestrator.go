package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/layout"
	"github.com/klabast/wb-services/abfall-display/internal/logger"
	"github.com/klabast/wb-services/abfall-display/internal/state"
)

// ScheduleClient fetches the raw schedule for an address. Errors should be
// *FetchError values; anything else is treated as fatal.
type ScheduleClient interface {
	Fetch(ctx context.Context, address string) (Schedule, error)
}

// StateStore persists the last displayed content
type StateStore interface {
	Load() (state.State, error)
	Save(st state.State) error
}

// Sink receives finished frames
type Sink interface {
	Push(ctx context.Context, img *image.Paletted) error
}

// RefreshRecord describes one attempted physical refresh
type RefreshRecord struct {
	At         time.Time
	PickupDate string
	Types      []string
	Hash       string
	Forced     bool
	Duration   time.Duration
	Err        error
}

// RefreshRecorder keeps a history of panel refreshes
type RefreshRecorder interface {
	Record(ctx context.Context, r RefreshRecord) error
}

// Phase is where a tick ended up
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseSkip
	PhaseComparing
	PhaseNoOp
	PhaseRendering
	PhasePersisting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseSkip:
		return "skip"
	case PhaseComparing:
		return "comparing"
	case PhaseNoOp:
		return "no-op"
	case PhaseRendering:
		return "rendering"
	case PhasePersisting:
		return "persisting"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// TickResult reports the outcome of one tick
type TickResult struct {
	// Phase is the last phase reached: Skip, NoOp, Persisting or Failed
	Phase    Phase
	Attempts int
	Content  Content
	Pushed   bool
	Err      error
}

// Orchestrator runs the fetch, compare, render and push cycle
type Orchestrator struct {
	cfg      Config
	client   ScheduleClient
	store    StateStore
	sink     Sink
	fonts    []layout.Font
	recorder RefreshRecorder
	cadence  Cadence
	log      logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state  state.State
	loaded bool
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithFonts replaces the candidate fonts
func WithFonts(fonts []layout.Font) Option {
	return func(o *Orchestrator) { o.fonts = fonts }
}

// WithRecorder attaches a refresh ledger
func WithRecorder(r RefreshRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithCadence overrides the cadence derived from the config
func WithCadence(c Cadence) Option {
	return func(o *Orchestrator) { o.cadence = c }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleeper replaces the context-aware sleep used for backoff and cadence waits
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// New validates cfg and wires the collaborators
func New(cfg Config, client ScheduleClient, store StateStore, sink Sink, log logger.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if client == nil || store == nil || sink == nil {
		return nil, errors.New("schedule client, state store and sink are required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	o := &Orchestrator{
		cfg:     cfg,
		client:  client,
		store:   store,
		sink:    sink,
		cadence: CadenceFor(cfg),
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
		state:   state.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.fonts == nil {
		fonts, err := layout.Candidates(cfg.FontSizes...)
		if err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
		o.fonts = fonts
	}
	return o, nil
}

// State returns the in-memory copy of the persisted state
func (o *Orchestrator) State() state.State {
	return o.state
}

// LoadState reads persisted state once. Any failure leaves the default
// state in place, so the next tick redraws.
func (o *Orchestrator) LoadState() {
	o.loaded = true
	st, err := o.store.Load()
	switch {
	case err == nil:
		o.state = st
		if st.HasContent() {
			o.log.Info("Loaded state: last pickup %q (%d types)", st.LastPickupDate, len(st.LastTypes))
		} else {
			o.log.Info("No previous state, first tick will refresh the display")
		}
	case errors.Is(err, state.ErrCorruptState):
		o.state = state.Default()
		o.log.Warning("Ignoring unreadable state: %v", err)
	default:
		o.state = state.Default()
		o.log.Error("Failed to load state: %v", err)
	}
}

// Tick runs one cycle. force redraws even when the content is unchanged.
func (o *Orchestrator) Tick(ctx context.Context, force bool) TickResult {
	if !o.loaded {
		o.LoadState()
	}

	schedule, attempts, err := o.fetchWithRetry(ctx, func(ctx context.Context) (Schedule, error) {
		return o.client.Fetch(ctx, o.cfg.Address)
	})
	if err != nil {
		if IsTransient(err) {
			o.log.Error("Giving up fetching schedule: %v", err)
		} else {
			o.log.Error("Fetching schedule failed: %v", err)
		}
		return TickResult{Phase: PhaseSkip, Attempts: attempts, Err: err}
	}

	content := FormatContent(schedule, o.now(), o.cfg.Location)
	res := TickResult{Phase: PhaseComparing, Attempts: attempts, Content: content}

	if !force && o.state.HasContent() && o.state.LastContentHash == content.Hash() {
		o.log.Info("%s (%s: %s)", MsgUnchanged, o.label(content), content.TypesLabel())
		res.Phase = PhaseNoOp
		return res
	}

	res.Phase = PhaseRendering
	img, plan, err := o.Render(content)
	if err != nil {
		o.log.Error("Rendering failed: %v", err)
		res.Phase, res.Err = PhaseFailed, err
		return res
	}
	if plan.Truncated {
		o.log.Warning("Type list truncated to fit the display (font %s %.0f)", plan.FontName, plan.FontSize)
	}

	o.log.Info("Content changed, refreshing display: %s: %s", o.label(content), content.TypesLabel())
	started := o.now()
	pushErr := o.sink.Push(ctx, img)
	o.record(ctx, content, force, o.now().Sub(started), pushErr)
	if pushErr != nil {
		err := fmt.Errorf("%w: %w", ErrDisplayPush, pushErr)
		o.log.Error("%v", err)
		res.Phase, res.Err = PhaseFailed, err
		return res
	}
	res.Pushed = true

	res.Phase = PhasePersisting
	next := state.State{
		LastPickupDate: content.DateKey(),
		LastTypes:      content.Types,
		LastRenderedAt: content.RenderedAt,
	}
	if err := o.store.Save(next); err != nil {
		o.log.Error("Failed to persist state (display already updated): %v", err)
		res.Err = fmt.Errorf("persist state: %w", err)
	}
	next.Version = state.CurrentVersion
	next.LastContentHash = content.Hash()
	o.state = next
	return res
}

// FetchSchedule fetches the configured address with the usual retry policy
func (o *Orchestrator) FetchSchedule(ctx context.Context) (Schedule, error) {
	schedule, _, err := o.fetchWithRetry(ctx, func(ctx context.Context) (Schedule, error) {
		return o.client.Fetch(ctx, o.cfg.Address)
	})
	return schedule, err
}

// Preview fetches and renders the current content without touching the
// display or the persisted state.
func (o *Orchestrator) Preview(ctx context.Context) (Content, *image.Paletted, layout.Plan, error) {
	schedule, err := o.FetchSchedule(ctx)
	if err != nil {
		return Content{}, nil, layout.Plan{}, err
	}
	content := FormatContent(schedule, o.now(), o.cfg.Location)
	img, plan, err := o.Render(content)
	return content, img, plan, err
}

// Render lays out and rasterizes content on the configured canvas
func (o *Orchestrator) Render(c Content) (*image.Paletted, layout.Plan, error) {
	plan := layout.Compute(BuildBlock(c, o.cfg.DateFormat), o.cfg.CanvasWidth, o.cfg.CanvasHeight, o.fonts)
	img, err := layout.Rasterize(plan, o.fonts)
	if err != nil {
		return nil, plan, err
	}
	return img, plan, nil
}

// RunForever ticks on the configured cadence until ctx is canceled. A tick in
// progress is never interrupted; cancellation is observed between ticks.
func (o *Orchestrator) RunForever(ctx context.Context) error {
	o.LoadState()
	o.log.Info("Starting display loop for %s (%s)", o.cfg.Address, o.cadence)

	for {
		if err := ctx.Err(); err != nil {
			o.log.Info("Shutting down")
			return nil
		}

		started := o.now()
		res := o.Tick(context.WithoutCancel(ctx), false)
		o.log.Info("Tick finished: %s after %d attempt(s) in %s", res.Phase, res.Attempts, o.now().Sub(started).Round(time.Millisecond))

		next, err := o.cadence.Next(o.now())
		if err != nil {
			return fmt.Errorf("compute next tick: %w", err)
		}
		if err := o.sleep(ctx, next.Sub(o.now())); err != nil {
			o.log.Info("Shutting down")
			return nil
		}
	}
}

func (o *Orchestrator) label(c Content) string {
	if c.IsEmpty() {
		return "no pickup"
	}
	return c.DateKey()
}

func (o *Orchestrator) record(ctx context.Context, c Content, forced bool, d time.Duration, pushErr error) {
	if o.recorder == nil {
		return
	}
	r := RefreshRecord{
		At:         o.now(),
		PickupDate: c.DateKey(),
		Types:      c.Types,
		Hash:       c.Hash(),
		Forced:     forced,
		Duration:   d,
		Err:        pushErr,
	}
	if err := o.recorder.Record(ctx, r); err != nil {
		o.log.Warning("Failed to record refresh: %v", err)
	}
}
