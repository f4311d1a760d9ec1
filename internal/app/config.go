package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/layout"
)

// Constants
const (
	DefaultPollInterval   = 5 * time.Minute
	DefaultFetchTimeout   = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 2 * time.Second
	DefaultBackoffFactor  = 2.0
	DefaultBackoffCeiling = 60 * time.Second
	DefaultJitterFactor   = 0.2
	DefaultTimezone       = "Europe/Copenhagen"
	DefaultDateFormat     = "Monday 02.01.2006"

	CanvasWidth  = 250
	CanvasHeight = 122

	// Log messages
	MsgUnchanged = "Content unchanged, skipping display refresh"
)

// Config carries everything the orchestrator needs besides its collaborators
type Config struct {
	Address string

	PollInterval time.Duration
	// Cron, when set, replaces PollInterval (5-field expression)
	Cron string

	FetchTimeout time.Duration
	// MaxRetries is the total number of fetch attempts per tick
	MaxRetries int
	Backoff    BackoffPolicy

	Location     *time.Location
	DateFormat   string
	CanvasWidth  int
	CanvasHeight int
	FontSizes    []float64
}

// DefaultConfig returns a Config with the production defaults
func DefaultConfig() Config {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.Local
	}
	return Config{
		PollInterval: DefaultPollInterval,
		FetchTimeout: DefaultFetchTimeout,
		MaxRetries:   DefaultMaxRetries,
		Backoff: BackoffPolicy{
			Base:    DefaultBackoffBase,
			Factor:  DefaultBackoffFactor,
			Ceiling: DefaultBackoffCeiling,
			Jitter:  DefaultJitterFactor,
		},
		Location:     loc,
		DateFormat:   DefaultDateFormat,
		CanvasWidth:  CanvasWidth,
		CanvasHeight: CanvasHeight,
		FontSizes:    append([]float64(nil), layout.DefaultSizes...),
	}
}

// Validate reports every invalid field at once
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Address) == "" {
		errs = append(errs, errors.New("address (collection point number) is required"))
	}
	if c.Cron != "" {
		if err := ValidateCron(c.Cron); err != nil {
			errs = append(errs, err)
		}
	} else if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries))
	}
	if err := c.Backoff.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Location == nil {
		errs = append(errs, errors.New("location is required"))
	}
	if strings.TrimSpace(c.DateFormat) == "" {
		errs = append(errs, errors.New("date format is required"))
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight))
	}
	for _, s := range c.FontSizes {
		if s <= 0 {
			errs = append(errs, fmt.Errorf("font size must be positive, got %v", s))
		}
	}
	return errors.Join(errs...)
}

// TickBound is the longest a tick can spend fetching
func (c Config) TickBound() time.Duration {
	if c.MaxRetries < 1 {
		return 0
	}
	return time.Duration(c.MaxRetries)*c.FetchTimeout + time.Duration(c.MaxRetries-1)*c.Backoff.Ceiling
}
