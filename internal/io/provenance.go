package io

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Provenance lists the inputs and settings that produced a connectivity matrix. It is
// written next to the matrix so that randomly named outputs can be traced back.
type Provenance struct {
	Tool    string    `toml:"tool"`
	Version string    `toml:"version"`
	Created time.Time `toml:"created"`

	Input     string   `toml:"input"`
	Atlas     string   `toml:"atlas,omitempty"`
	Masks     []string `toml:"masks,omitempty"`
	AllowList string   `toml:"allow_list,omitempty"`
	BrainMask string   `toml:"brain_mask,omitempty"`

	Requested     string `toml:"requested_output"`
	Output        string `toml:"output"`
	UpperTriangle bool   `toml:"upper_triangle"`

	Regions    []int `toml:"regions"`
	TimePoints int   `toml:"timepoints"`
	Degenerate []int `toml:"degenerate,omitempty"`
}

// ProvenancePath returns the companion text file path of a matrix file.
func ProvenancePath(matrixPath string) string {
	return strings.TrimSuffix(matrixPath, NpyExt) + ".txt"
}

// WriteProvenance encodes p as TOML into a new file at path.
func WriteProvenance(path string, p *Provenance) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// ReadProvenance decodes a companion file written by WriteProvenance.
func ReadProvenance(path string) (*Provenance, error) {
	p := new(Provenance)
	if _, err := toml.DecodeFile(path, p); err != nil {
		return nil, err
	}
	return p, nil
}
