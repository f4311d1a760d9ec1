package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/app"
	"github.com/urfave/cli"
)

func export(c *cli.Context) error {
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	var reminders []app.Reminder
	for _, s := range c.StringSlice("reminder") {
		r, err := app.ParseReminder(s)
		if err != nil {
			return err
		}
		reminders = append(reminders, r)
	}

	orch, err := e.orchestrator(previewSink{})
	if err != nil {
		return err
	}
	schedule, err := orch.FetchSchedule(context.Background())
	if err != nil {
		return err
	}
	now := time.Now()
	events := app.ExportEvents(schedule, now, e.cfg.Location)

	var buf bytes.Buffer
	switch format := c.String("format"); format {
	case "ics":
		err = app.WriteICS(&buf, e.cfg.Address, events, reminders, now, e.cfg.Location.String())
	case "csv":
		err = app.WriteCSV(&buf, events)
	case "json":
		err = app.WriteJSON(&buf, e.cfg.Address, events)
	default:
		return fmt.Errorf("unknown export format %q (want ics, csv or json)", format)
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if path := c.String("file"); path != "" {
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		e.log.Info("Exported %d collections to %s", len(events), path)
		return nil
	}
	_, err = c.App.Writer.Write(buf.Bytes())
	return err
}
