package commands

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type cliHarness struct {
	dir     string
	baseURL string
	fetches *atomic.Int32
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	h := &cliHarness{dir: t.TempDir(), fetches: &atomic.Int32{}}
	soon := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")
	later := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.fetches.Add(1)
		fmt.Fprintf(w, `[{"standplads":{"nummer":"013165"},"planlagtetømninger":[
			{"dato":%q,"fraktioner":["Papir","Restaffald"]},
			{"dato":%q,"fraktioner":["Glas"]}]}]`, soon, later)
	}))
	t.Cleanup(srv.Close)
	h.baseURL = srv.URL
	return h
}

func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	base := []string{
		"abfall-display",
		"--address", "013165",
		"--base-url", h.baseURL,
		"--state-file", filepath.Join(h.dir, "state.json"),
		"--ledger", filepath.Join(h.dir, "refreshes.db"),
		"--output", filepath.Join(h.dir, "frame.png"),
		"--timezone", "UTC",
		"--driver", "file",
	}
	err := newApp(BuildArgs{}, &stdout, io.Discard).Run(append(base, args...))
	return stdout.String(), err
}

func TestOnceRefreshesOnlyOnChange(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "once")
	if err != nil {
		t.Fatalf("once: %v", err)
	}
	if !strings.Contains(out, "persisting") || !strings.Contains(out, "Restaffald, Papir") {
		t.Errorf("first once output = %q", out)
	}
	frame := filepath.Join(h.dir, "frame.png")
	first, err := os.Stat(frame)
	if err != nil {
		t.Fatalf("frame not written: %v", err)
	}

	out, err = h.run(t, "once")
	if err != nil {
		t.Fatalf("second once: %v", err)
	}
	if !strings.Contains(out, "no-op") {
		t.Errorf("second once output = %q", out)
	}
	second, _ := os.Stat(frame)
	if !second.ModTime().Equal(first.ModTime()) {
		t.Error("frame rewritten for unchanged content")
	}

	out, err = h.run(t, "once", "--force")
	if err != nil || !strings.Contains(out, "persisting") {
		t.Errorf("forced once = %q, %v", out, err)
	}

	f, err := os.Open(frame)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if img.Bounds().Dx() != 250 || img.Bounds().Dy() != 122 {
		t.Errorf("frame size = %v", img.Bounds())
	}
}

func TestStatsAfterRefresh(t *testing.T) {
	h := newCLIHarness(t)
	if _, err := h.run(t, "once"); err != nil {
		t.Fatal(err)
	}
	out, err := h.run(t, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"Restaffald, Papir", "Refreshes: 1 (0 failed, 0 forced)"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output %q missing %q", out, want)
		}
	}
}

func TestClearResetsState(t *testing.T) {
	h := newCLIHarness(t)
	if _, err := h.run(t, "once"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(t, "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "state.json")); !os.IsNotExist(err) {
		t.Errorf("state file still present: %v", err)
	}
	out, err := h.run(t, "once")
	if err != nil || !strings.Contains(out, "persisting") {
		t.Errorf("once after clear = %q, %v", out, err)
	}
}

func TestPreviewDoesNotTouchState(t *testing.T) {
	h := newCLIHarness(t)
	pngPath := filepath.Join(h.dir, "preview.png")
	out, err := h.run(t, "preview", "--png", pngPath)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "Preview written") {
		t.Errorf("preview output = %q", out)
	}
	if _, err := os.Stat(pngPath); err != nil {
		t.Errorf("preview png missing: %v", err)
	}
	for _, name := range []string{"state.json", "frame.png"} {
		if _, err := os.Stat(filepath.Join(h.dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s created by preview", name)
		}
	}

	out, err = h.run(t, "preview")
	if err != nil || !strings.Contains(out, "header") {
		t.Errorf("text preview = %q, %v", out, err)
	}
}

func TestExportFormats(t *testing.T) {
	h := newCLIHarness(t)
	tests := map[string]string{
		"ics":  "BEGIN:VCALENDAR",
		"csv":  "dato,fraktioner",
		"json": `"address": "013165"`,
	}
	for format, want := range tests {
		out, err := h.run(t, "export", "--format", format, "--reminder", "1@19:00")
		if err != nil {
			t.Fatalf("export %s: %v", format, err)
		}
		if !strings.Contains(out, want) {
			t.Errorf("export %s output missing %q", format, want)
		}
	}
	if _, err := h.run(t, "export", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := h.run(t, "export", "--reminder", "tomorrow"); err == nil {
		t.Error("expected error for bad reminder")
	}
}

func TestMissingAddress(t *testing.T) {
	t.Setenv("NUMMER", "")
	var stdout bytes.Buffer
	err := newApp(BuildArgs{}, &stdout, io.Discard).Run([]string{"abfall-display", "once"})
	if err == nil || !strings.Contains(err.Error(), "address") {
		t.Fatalf("err = %v, want address error", err)
	}
}

func TestUnknownDriver(t *testing.T) {
	h := newCLIHarness(t)
	if _, err := h.run(t, "--driver", "inky", "once"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestParseSizes(t *testing.T) {
	sizes, err := parseSizes(" 30, 22.5 ,15 ")
	if err != nil || len(sizes) != 3 || sizes[1] != 22.5 {
		t.Errorf("parseSizes() = %v, %v", sizes, err)
	}
	for _, bad := range []string{"", "abc", "30,-1"} {
		if _, err := parseSizes(bad); err == nil {
			t.Errorf("parseSizes(%q) accepted", bad)
		}
	}
	if got := formatSizes([]float64{30, 22.5}); got != "30,22.5" {
		t.Errorf("formatSizes() = %q", got)
	}
}
