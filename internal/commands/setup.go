package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/klabast/wb-services/abfall-display/internal/app"
	"github.com/klabast/wb-services/abfall-display/internal/display"
	"github.com/klabast/wb-services/abfall-display/internal/ledger"
	"github.com/klabast/wb-services/abfall-display/internal/logger"
	"github.com/klabast/wb-services/abfall-display/internal/renosyd"
	"github.com/klabast/wb-services/abfall-display/internal/state"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

// env is everything a command needs, opened from the global flags
type env struct {
	cfg    app.Config
	log    logger.Logger
	fs     afero.Fs
	store  *state.Store
	client *renosyd.Client
	ledger *ledger.Ledger

	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.log.Warning("Cleanup failed: %v", err)
		}
	}
}

// openEnv builds config, logger, state store, client and (optionally) ledger
func openEnv(c *cli.Context, withLedger bool) (*env, error) {
	cfg, err := configFromFlags(c)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg: cfg,
		log: logger.New(c.App.ErrWriter),
		fs:  afero.NewOsFs(),
	}
	e.store = state.NewStore(e.fs, c.GlobalString("state-file"))

	opts := []renosyd.Option{
		renosyd.WithLocation(cfg.Location),
		renosyd.WithLogger(e.log),
	}
	if base := c.GlobalString("base-url"); base != "" {
		opts = append(opts, renosyd.WithBaseURL(base))
	}
	e.client = renosyd.NewClient(opts...)

	if path := c.GlobalString("ledger"); withLedger && path != "" {
		l, err := ledger.Open(path)
		if err != nil {
			// refreshes still work without the history
			e.log.Warning("Refresh ledger unavailable: %v", err)
		} else {
			e.ledger = l
			e.closers = append(e.closers, l.Close)
		}
	}
	return e, nil
}

// sinkCloser is a display sink that holds hardware resources
type sinkCloser interface {
	display.Sink
	Close() error
}

// openSink connects the configured display driver
func (e *env) openSink(c *cli.Context) (display.Sink, error) {
	orient, err := orientationFromFlags(c)
	if err != nil {
		return nil, err
	}

	var sink sinkCloser
	switch driver := c.GlobalString("driver"); driver {
	case DriverFile:
		return display.NewFileSink(e.fs, c.GlobalString("output"), e.cfg.CanvasWidth, e.cfg.CanvasHeight, orient, e.log), nil
	case DriverSSD1680:
		cfg := display.DefaultSSD1680Config()
		cfg.SPIPort = c.GlobalString("spi-port")
		panel, err := display.OpenSSD1680(cfg)
		if err != nil {
			return nil, fmt.Errorf("open SSD1680 panel: %w", err)
		}
		sink = display.NewPanelSink(panel, orient, e.log)
	case DriverWaveshare:
		panel, err := display.OpenWaveshare213(c.GlobalString("spi-port"))
		if err != nil {
			return nil, fmt.Errorf("open Waveshare panel: %w", err)
		}
		sink = display.NewPanelSink(panel, orient, e.log)
	default:
		return nil, fmt.Errorf("unknown display driver %q (want %s, %s or %s)", driver, DriverFile, DriverSSD1680, DriverWaveshare)
	}
	e.closers = append(e.closers, sink.Close)
	return sink, nil
}

// orchestrator wires an Orchestrator pushing to sink
func (e *env) orchestrator(sink app.Sink) (*app.Orchestrator, error) {
	var opts []app.Option
	if e.ledger != nil {
		opts = append(opts, app.WithRecorder(e.ledger))
	}
	return app.New(e.cfg, e.client, e.store, sink, e.log, opts...)
}

// setupShutdownHandler returns a context canceled on SIGTERM or SIGINT
func setupShutdownHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
		cancel()
	}()

	return ctx, cancel
}
