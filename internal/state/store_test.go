package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const testPath = "/var/lib/abfall-display/state.json"

func sampleState() State {
	return State{
		LastPickupDate: "2024-06-03",
		LastTypes:      []string{"Papir", "Glas"},
		LastRenderedAt: time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC),
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), testPath)

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.HasContent() {
		t.Error("default state should not have content")
	}
	if st.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", st.Version, CurrentVersion)
	}
}

func TestSaveThenLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testPath)

	if err := store.Save(sampleState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !st.HasContent() {
		t.Fatal("loaded state should have content")
	}
	if st.LastPickupDate != "2024-06-03" || strings.Join(st.LastTypes, ",") != "Papir,Glas" {
		t.Errorf("unexpected state: %+v", st)
	}
	if st.LastContentHash != Fingerprint("2024-06-03", []string{"Papir", "Glas"}) {
		t.Error("hash not computed on save")
	}
	if !st.LastRenderedAt.Equal(sampleState().LastRenderedAt) {
		t.Errorf("LastRenderedAt = %v", st.LastRenderedAt)
	}

	entries, err := afero.ReadDir(fs, filepath.Dir(testPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the state file, found %d entries", len(entries))
	}
}

func TestSentinelStateCountsAsContent(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), testPath)
	if err := store.Save(State{}); err != nil {
		t.Fatal(err)
	}
	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasContent() {
		t.Error("a shown sentinel must be remembered")
	}
}

func TestLoadCorruptFiles(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated json", `{"version":1,"last_pickup_date":"2024-`},
		{"not json", "hello"},
		{"future version", `{"version":99}`},
		{"missing version", `{"last_pickup_date":""}`},
		{"hash mismatch", `{"version":1,"last_content_hash":"abc","last_pickup_date":"2024-06-03","last_types":["Glas"]}`},
		{"content without hash", `{"version":1,"last_pickup_date":"2024-06-03","last_types":["Glas"]}`},
		{"bad date", `{"version":1,"last_content_hash":"` + Fingerprint("06/03/2024", nil) + `","last_pickup_date":"06/03/2024"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, testPath, []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}

			st, err := NewStore(fs, testPath).Load()
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("Load() error = %v, want ErrCorruptState", err)
			}
			var ce *CorruptStateError
			if !errors.As(err, &ce) || ce.Path != testPath {
				t.Errorf("expected *CorruptStateError for %s, got %T", testPath, err)
			}
			if st.HasContent() {
				t.Error("corrupt state must fall back to default")
			}
		})
	}
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := `{"version":1,"last_content_hash":"` + Fingerprint("2024-06-03", []string{"Glas"}) +
		`","last_pickup_date":"2024-06-03","last_types":["Glas"],"panel":"v4","extra":{"a":1}}`
	if err := afero.WriteFile(fs, testPath, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := NewStore(fs, testPath).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.LastTypes[0] != "Glas" {
		t.Errorf("LastTypes = %v", st.LastTypes)
	}
}

// crashFs simulates a process killed during Save: writes stop after limit
// bytes and the rename never happens.
type crashFs struct {
	afero.Fs
	limit int
}

func (c *crashFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := c.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &shortFile{File: f, limit: c.limit}, nil
}

func (c *crashFs) Rename(oldname, newname string) error {
	return errors.New("killed before rename")
}

type shortFile struct {
	afero.File
	limit int
}

func (f *shortFile) Write(p []byte) (int, error) {
	if len(p) > f.limit {
		n, _ := f.File.Write(p[:f.limit])
		return n, errors.New("killed mid-write")
	}
	return f.File.Write(p)
}

func TestSaveInterruptedKeepsPreviousState(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := NewStore(base, testPath).Save(sampleState()); err != nil {
		t.Fatal(err)
	}

	newer := State{LastPickupDate: "2024-06-10", LastTypes: []string{"Restaffald"}}
	for _, limit := range []int{0, 1, 17, 64, 1 << 20} {
		crashing := NewStore(&crashFs{Fs: base, limit: limit}, testPath)
		if err := crashing.Save(newer); err == nil {
			t.Fatalf("limit %d: expected Save to fail", limit)
		}

		st, err := NewStore(base, testPath).Load()
		if err != nil {
			t.Fatalf("limit %d: Load() error = %v", limit, err)
		}
		if st.LastPickupDate != "2024-06-03" {
			t.Fatalf("limit %d: state moved ahead to %s", limit, st.LastPickupDate)
		}
	}

	entries, err := afero.ReadDir(base, filepath.Dir(testPath))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestStrayTempFileIsIgnored(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testPath)
	if err := store.Save(sampleState()); err != nil {
		t.Fatal(err)
	}
	// A temp file left by a kill between write and rename
	if err := afero.WriteFile(fs, testPath+".tmp-123", []byte(`{"version":1,"last_pi`), 0600); err != nil {
		t.Fatal(err)
	}

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.LastPickupDate != "2024-06-03" {
		t.Errorf("LastPickupDate = %q", st.LastPickupDate)
	}
}

func TestReset(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testPath)
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() on missing file: %v", err)
	}
	if err := store.Save(sampleState()); err != nil {
		t.Fatal(err)
	}
	if err := store.Reset(); err != nil {
		t.Fatal(err)
	}
	st, err := store.Load()
	if err != nil || st.HasContent() {
		t.Errorf("after Reset: state=%+v err=%v", st, err)
	}
}
