package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli"
)

func run(c *cli.Context) error {
	e, err := openEnv(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	sink, err := e.openSink(c)
	if err != nil {
		return err
	}
	orch, err := e.orchestrator(sink)
	if err != nil {
		return err
	}

	ctx, cancel := setupShutdownHandler()
	defer cancel()
	return orch.RunForever(ctx)
}

func once(c *cli.Context) error {
	e, err := openEnv(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	sink, err := e.openSink(c)
	if err != nil {
		return err
	}
	orch, err := e.orchestrator(sink)
	if err != nil {
		return err
	}

	res := orch.Tick(context.Background(), c.Bool("force"))
	fmt.Fprintf(c.App.Writer, "%s: %s (%d attempt(s))\n", res.Phase, res.Content.TypesLabel(), res.Attempts)
	return res.Err
}

func clearDisplay(c *cli.Context) error {
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	sink, err := e.openSink(c)
	if err != nil {
		return err
	}
	if err := sink.Clear(context.Background()); err != nil {
		return err
	}
	if err := e.store.Reset(); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "Display cleared, state reset")
	return nil
}
