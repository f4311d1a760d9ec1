// Package commands implements the abfall-display command line.
package commands

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/urfave/cli"
)

// BuildArgs carries link-time build information
type BuildArgs struct {
	Version string
	Commit  string
	Date    string
}

// Execute runs the CLI with args (including the program name)
func Execute(args []string, b BuildArgs) error {
	return newApp(b, os.Stdout, os.Stderr).Run(args)
}

func newApp(b BuildArgs, stdout, stderr io.Writer) *cli.App {
	if b.Version == "" {
		b.Version = "dev"
	}
	a := cli.NewApp()
	a.Name = "abfall-display"
	a.HelpName = "abfall-display"
	a.Usage = "show the next waste collection on an e-paper display"
	a.UsageText = "abfall-display [global options] <command> [arguments...]"
	a.Version = fmt.Sprintf("%s (%s, %s_%s, built %s)", b.Version, b.Commit, runtime.GOOS, runtime.GOARCH, b.Date)
	a.Writer = stdout
	a.ErrWriter = stderr
	a.Flags = globalFlags
	a.Commands = []cli.Command{
		{
			Name:        "run",
			Usage:       "poll the schedule and refresh the display until stopped",
			Description: RunDescription,
			Action:      run,
		},
		{
			Name:        "once",
			Usage:       "run a single tick",
			Description: OnceDescription,
			Action:      once,
			Flags:       onceFlags,
		},
		{
			Name:        "clear",
			Usage:       "blank the display and forget the shown content",
			Description: ClearDescription,
			Action:      clearDisplay,
		},
		{
			Name:        "preview",
			Usage:       "render the current content without touching the display",
			Description: PreviewDescription,
			Action:      preview,
			Flags:       previewFlags,
		},
		{
			Name:   "stats",
			Usage:  "summarize the refresh ledger",
			Action: stats,
			Flags:  statsFlags,
		},
		{
			Name:        "export",
			Usage:       "export upcoming collections as iCalendar, CSV or JSON",
			Description: ExportDescription,
			Action:      export,
			Flags:       exportFlags,
		},
	}
	return a
}

const (
	RunDescription = `Fetches the collection plan on the configured cadence and refreshes the
panel only when the next pickup changed. SIGINT and SIGTERM stop the loop
after the running tick has finished.`

	OnceDescription = `Runs exactly one fetch, compare and refresh cycle. With --force the panel
is refreshed even when the content is unchanged.`

	ClearDescription = `Blanks the panel to white and removes the state file, so the next run
redraws the current content.`

	PreviewDescription = `Fetches and renders the current content. The frame is written as PNG when
--output is given, otherwise drawn as text art when stdout is a terminal.`

	ExportDescription = `Writes all upcoming collections. Reminders use <days>@HH:MM, for example
--reminder 1@19:00 --reminder 0@06:30.`
)
