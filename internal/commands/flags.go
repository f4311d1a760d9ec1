package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/app"
	"github.com/klabast/wb-services/abfall-display/internal/display"
	"github.com/klabast/wb-services/abfall-display/internal/state"
	"github.com/urfave/cli"
)

// Display drivers
const (
	DriverFile      = "file"
	DriverSSD1680   = "ssd1680"
	DriverWaveshare = "waveshare"
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "address, a",
		Usage:  "RenoSyd collection point number",
		EnvVar: "NUMMER",
	},
	cli.StringFlag{
		Name:   "base-url",
		Usage:  "schedule API base URL",
		EnvVar: "ABFALL_BASE_URL",
	},
	cli.DurationFlag{
		Name:   "interval",
		Usage:  "poll interval",
		Value:  app.DefaultPollInterval,
		EnvVar: "ABFALL_INTERVAL",
	},
	cli.StringFlag{
		Name:   "cron",
		Usage:  "5-field cron expression; replaces --interval",
		EnvVar: "ABFALL_CRON",
	},
	cli.DurationFlag{
		Name:   "fetch-timeout",
		Usage:  "timeout of a single fetch attempt",
		Value:  app.DefaultFetchTimeout,
		EnvVar: "ABFALL_FETCH_TIMEOUT",
	},
	cli.IntFlag{
		Name:   "max-retries",
		Usage:  "fetch attempts per tick",
		Value:  app.DefaultMaxRetries,
		EnvVar: "ABFALL_MAX_RETRIES",
	},
	cli.DurationFlag{
		Name:   "backoff-base",
		Usage:  "wait after the first failed attempt",
		Value:  app.DefaultBackoffBase,
		EnvVar: "ABFALL_BACKOFF_BASE",
	},
	cli.DurationFlag{
		Name:   "backoff-ceiling",
		Usage:  "longest wait between attempts",
		Value:  app.DefaultBackoffCeiling,
		EnvVar: "ABFALL_BACKOFF_CEILING",
	},
	cli.StringFlag{
		Name:   "state-file",
		Usage:  "path of the state file",
		Value:  state.DefaultFile,
		EnvVar: "ABFALL_STATE_FILE",
	},
	cli.StringFlag{
		Name:   "ledger",
		Usage:  "SQLite refresh ledger (empty disables it)",
		Value:  "refreshes.db",
		EnvVar: "ABFALL_LEDGER",
	},
	cli.StringFlag{
		Name:   "driver",
		Usage:  "display driver: file, ssd1680 or waveshare",
		Value:  DriverFile,
		EnvVar: "ABFALL_DRIVER",
	},
	cli.StringFlag{
		Name:   "spi-port",
		Usage:  "SPI port name for hardware drivers (empty picks the first)",
		EnvVar: "ABFALL_SPI_PORT",
	},
	cli.StringFlag{
		Name:   "orientation",
		Usage:  "clockwise rotation of the frame onto the panel: 0, 90, 180 or 270 (default: 90 for hardware drivers, 0 for file)",
		EnvVar: "ABFALL_ORIENTATION",
	},
	cli.StringFlag{
		Name:   "output, o",
		Usage:  "PNG written by the file driver",
		Value:  "display.png",
		EnvVar: "ABFALL_OUTPUT",
	},
	cli.StringFlag{
		Name:   "timezone",
		Usage:  "IANA zone that decides when a pickup day ends",
		Value:  app.DefaultTimezone,
		EnvVar: "ABFALL_TIMEZONE",
	},
	cli.StringFlag{
		Name:   "date-format",
		Usage:  "Go time layout of the date header",
		Value:  app.DefaultDateFormat,
		EnvVar: "ABFALL_DATE_FORMAT",
	},
	cli.StringFlag{
		Name:   "font-sizes",
		Usage:  "comma separated candidate font sizes, largest first",
		Value:  formatSizes(app.DefaultConfig().FontSizes),
		EnvVar: "ABFALL_FONT_SIZES",
	},
}

var (
	onceFlags = []cli.Flag{
		cli.BoolFlag{
			Name:  "force, f",
			Usage: "refresh the display even when the content is unchanged",
		},
	}

	previewFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "png",
			Usage: "write the rendered frame to this PNG file",
		},
	}

	statsFlags = []cli.Flag{
		cli.IntFlag{
			Name:  "recent, n",
			Usage: "number of recent refreshes to list",
			Value: 10,
		},
	}

	exportFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "format, f",
			Usage: "ics, csv or json",
			Value: "ics",
		},
		cli.StringFlag{
			Name:  "file",
			Usage: "output file (default: stdout)",
		},
		cli.StringSliceFlag{
			Name:  "reminder, r",
			Usage: "ICS reminder as <days>@HH:MM (repeatable)",
		},
	}
)

// configFromFlags builds the orchestrator config from the global flags
func configFromFlags(c *cli.Context) (app.Config, error) {
	cfg := app.DefaultConfig()
	cfg.Address = strings.TrimSpace(c.GlobalString("address"))
	cfg.PollInterval = c.GlobalDuration("interval")
	cfg.Cron = strings.TrimSpace(c.GlobalString("cron"))
	cfg.FetchTimeout = c.GlobalDuration("fetch-timeout")
	cfg.MaxRetries = c.GlobalInt("max-retries")
	cfg.Backoff.Base = c.GlobalDuration("backoff-base")
	cfg.Backoff.Ceiling = c.GlobalDuration("backoff-ceiling")
	cfg.DateFormat = c.GlobalString("date-format")

	loc, err := time.LoadLocation(c.GlobalString("timezone"))
	if err != nil {
		return app.Config{}, fmt.Errorf("invalid timezone: %w", err)
	}
	cfg.Location = loc

	sizes, err := parseSizes(c.GlobalString("font-sizes"))
	if err != nil {
		return app.Config{}, err
	}
	cfg.FontSizes = sizes

	if err := cfg.Validate(); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// orientationFromFlags defaults to portrait mounting for hardware panels,
// whose native frame is 122x250.
func orientationFromFlags(c *cli.Context) (display.Orientation, error) {
	if !c.GlobalIsSet("orientation") {
		if c.GlobalString("driver") == DriverFile {
			return display.Rotate0, nil
		}
		return display.Rotate90, nil
	}
	return display.ParseOrientation(c.GlobalString("orientation"))
}

// parseSizes reads "30,26,22"
func parseSizes(s string) ([]float64, error) {
	var sizes []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid font size %q", part)
		}
		sizes = append(sizes, v)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no font sizes in %q", s)
	}
	return sizes, nil
}

func formatSizes(sizes []float64) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.FormatFloat(s, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
