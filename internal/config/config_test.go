package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Output.Dir != "." || !cfg.Output.Provenance {
		t.Errorf("unexpected output defaults %+v", cfg.Output)
	}
	if cfg.Batch.Workers != runtime.NumCPU() {
		t.Errorf("workers %d, want %d", cfg.Batch.Workers, runtime.NumCPU())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectome.yaml")
	yaml := `allowList: /opt/fs/grey_matter.csv
output:
  dir: /scratch/matrices
  upperTriangle: true
batch:
  workers: 3
logging:
  verbose: true
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AllowList != "/opt/fs/grey_matter.csv" {
		t.Errorf("allowList %q", cfg.AllowList)
	}
	if cfg.Output.Dir != "/scratch/matrices" || !cfg.Output.UpperTriangle {
		t.Errorf("output %+v", cfg.Output)
	}
	if !cfg.Output.Provenance {
		t.Error("unset provenance should keep its default")
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("workers %d, want 3", cfg.Batch.Workers)
	}
	if !cfg.Logging.Verbose || cfg.Logging.MaxSize != 100 {
		t.Errorf("logging %+v", cfg.Logging)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("batch: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected parse error")
	}

	zero := filepath.Join(dir, "zero.yaml")
	if err := os.WriteFile(zero, []byte("batch:\n  workers: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(zero); err == nil {
		t.Error("expected validation error")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "connectome.yaml")
	cfg := DefaultConfig()
	cfg.BrainMask = "/opt/mni/MNI152_T1_2mm_brain_mask.nii.gz"
	cfg.Batch.Workers = 5

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.BrainMask != cfg.BrainMask || got.Batch.Workers != 5 {
		t.Errorf("got %+v", got)
	}
}
