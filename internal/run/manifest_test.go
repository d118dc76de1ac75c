package run_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
	"github.com/KaramelBytes/cplog-cli/internal/run"
	"github.com/KaramelBytes/cplog-cli/internal/units"
)

func TestManifestSaveLoad(t *testing.T) {
	up, lo := 900.0, 660.0
	res := &cplog.Result{
		File:    "a.txt",
		Params:  []string{"BV"},
		Records: []cplog.Record{{File: "a.txt", Lot: "L1", Device: 1, Values: map[string]units.Value{"BV": units.Number(700)}}},
		Limits:  map[string]cplog.Limits{"BV": {Parameter: "BV", Upper: &up, Lower: &lo}},
	}
	ds, _ := dataset.Merge([]*cplog.Result{res})
	b := &dataset.Batch{
		ID: uuid.New(), Dataset: ds, Parsed: []string{"a.txt"},
		Skipped: []dataset.Skipped{{File: "b.txt", Err: cplog.ErrNoLimits}},
	}
	s := analysis.BuildSummary(b, nil, analysis.SummaryOptions{})

	m := run.New([]string{"logs"}, b, s)
	m.AddOutput("report.md")
	dir := filepath.Join(t.TempDir(), "out")
	path, err := m.Save(dir)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}

	got, err := run.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != b.ID.String() {
		t.Fatalf("id = %s, want %s", got.ID, b.ID)
	}
	if got.GroupBy != "lot" || got.Records != 1 {
		t.Fatalf("unexpected manifest: %+v", got)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].Reason != cplog.ErrNoLimits.Error() {
		t.Fatalf("skipped = %+v", got.Skipped)
	}
	if len(got.Limits) != 1 || got.Limits[0].Upper == nil || *got.Limits[0].Upper != 900 {
		t.Fatalf("limits = %+v", got.Limits)
	}
	if len(got.Outputs) != 1 || got.Outputs[0] != "report.md" {
		t.Fatalf("outputs = %v", got.Outputs)
	}
}

func TestLoadMissingManifest(t *testing.T) {
	if _, err := run.Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
