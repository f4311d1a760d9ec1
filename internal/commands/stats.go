package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klabast/wb-services/abfall-display/internal/state"
	"github.com/urfave/cli"
)

func stats(c *cli.Context) error {
	e, err := openEnv(c, true)
	if err != nil {
		return err
	}
	defer e.Close()
	out := c.App.Writer

	st, err := e.store.Load()
	switch {
	case errors.Is(err, state.ErrCorruptState):
		fmt.Fprintf(out, "State:    unreadable (%v)\n", err)
	case err != nil:
		return err
	case !st.HasContent():
		fmt.Fprintln(out, "State:    nothing shown yet")
	case st.LastPickupDate == "":
		fmt.Fprintf(out, "State:    no pickup planned (shown %s)\n", humanize.Time(st.LastRenderedAt))
	default:
		fmt.Fprintf(out, "State:    %s %s (shown %s)\n", st.LastPickupDate, strings.Join(st.LastTypes, ", "), humanize.Time(st.LastRenderedAt))
	}

	if e.ledger == nil {
		fmt.Fprintln(out, "Ledger:   disabled")
		return nil
	}
	ctx := context.Background()
	sum, err := e.ledger.Summarize(ctx)
	if err != nil {
		return err
	}
	if sum.Total == 0 {
		fmt.Fprintln(out, "Ledger:   no refreshes recorded")
		return nil
	}
	fmt.Fprintf(out, "Refreshes: %s (%s failed, %s forced) since %s\n",
		humanize.Comma(sum.Total), humanize.Comma(sum.Failed), humanize.Comma(sum.Forced), humanize.Time(sum.First))
	if !sum.LastOK.IsZero() {
		fmt.Fprintf(out, "Last OK:   %s, average push %s\n", humanize.Time(sum.LastOK), sum.AvgPush.Round(time.Millisecond))
	}

	recent, err := e.ledger.Recent(ctx, c.Int("recent"))
	if err != nil {
		return err
	}
	for _, r := range recent {
		status := "ok"
		if !r.OK() {
			status = "failed: " + r.Error
		}
		if r.Forced {
			status += " (forced)"
		}
		date := r.PickupDate
		if date == "" {
			date = "-"
		}
		fmt.Fprintf(out, "  %s  %-10s %-40s %s\n", r.At.Format("2006-01-02 15:04"), date, strings.Join(r.Types, ", "), status)
	}
	return nil
}
