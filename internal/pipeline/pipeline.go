// Package pipeline runs one connectivity extraction: read the time series, build the region
// partition, average each region over time, correlate, and save the matrix.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/KyungWonPark/connectome/internal/calc"
	"github.com/KyungWonPark/connectome/internal/io"
	"github.com/KyungWonPark/connectome/internal/roi"
	"github.com/KyungWonPark/connectome/internal/volume"
	"github.com/blang/semver"
	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"
)

// Version of the connectivity pipeline, recorded in every provenance file.
var Version = semver.MustParse("1.2.0")

// Stage names used in StageError.
const (
	StageRequest    = "request"
	StageTimeSeries = "read time series"
	StageLabels     = "label regions"
	StageBrainMask  = "brain mask"
	StageExtract    = "extract"
	StageCorrelate  = "correlate"
	StageWrite      = "write"
)

// StageError tags a failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrROISource is returned when a request names neither or both of an atlas and masks.
var ErrROISource = errors.New("need exactly one of an atlas or a list of binary ROI masks")

// Request describes one extraction.
type Request struct {
	// TimeSeries is the 4D functional volume.
	TimeSeries string

	// Atlas is a labeled 3D volume. Exclusive with Masks.
	Atlas string

	// Masks are binary 3D volumes; mask k becomes region k+1.
	Masks []string

	// AllowList restricts the output to these labels when non-nil.
	AllowList     roi.AllowList
	AllowListPath string

	// BrainMask, when set, drops voxels outside this 3D mask from every region.
	BrainMask string

	// Output is the requested matrix path; .npy is appended when missing.
	Output string

	UpperTriangle bool

	// SaveTimeSeries and SaveLabels optionally keep the region series (.npy) and the merged
	// label volume (.nii/.nii.gz).
	SaveTimeSeries string
	SaveLabels     string

	// Provenance writes a companion .txt next to the matrix.
	Provenance bool
}

// Result describes a finished extraction.
type Result struct {
	Output     string
	Provenance string
	TimeSeries *calc.TimeSeries

	// Connectivity is the full matrix; Matrix is what was saved to Output, with the lower
	// triangle zeroed when an upper triangle was requested.
	Connectivity *calc.Connectivity
	Matrix       *mat64.Dense
}

func (req *Request) validate() error {
	if req.TimeSeries == "" {
		return errors.New("no time series volume given")
	}
	if req.Output == "" {
		return errors.New("no output path given")
	}
	if (req.Atlas == "") == (len(req.Masks) == 0) {
		return ErrROISource
	}
	if req.SaveLabels != "" && !volume.HasVolumeExt(req.SaveLabels) {
		return fmt.Errorf("label volume %s must be .nii/.nii.gz format", req.SaveLabels)
	}
	return nil
}

func (req *Request) labels() (*roi.Labels, error) {
	if req.Atlas != "" {
		return roi.FromAtlas(req.Atlas)
	}
	labels, err := roi.FromMasks(req.Masks)
	if err != nil {
		return nil, err
	}
	if labels.Overlaps > 0 {
		log.WithFields(log.Fields{
			"voxels": labels.Overlaps,
		}).Warn("Binary ROI masks overlap; overlapping voxels belong to the later mask")
	}
	return labels, nil
}

// Compute runs every stage up to and including correlation without writing anything.
func Compute(req *Request) (*calc.TimeSeries, *calc.Connectivity, *roi.Labels, error) {
	if err := req.validate(); err != nil {
		return nil, nil, nil, &StageError{StageRequest, err}
	}

	log.WithField("input", req.TimeSeries).Info("Reading timeseries data...")
	vol, err := volume.Read(req.TimeSeries, 4)
	if err != nil {
		return nil, nil, nil, &StageError{StageTimeSeries, err}
	}

	labels, err := req.labels()
	if err != nil {
		return nil, nil, nil, &StageError{StageLabels, err}
	}

	if req.BrainMask != "" {
		mask, err := volume.Read(req.BrainMask, 3)
		if err != nil {
			return nil, nil, nil, &StageError{StageBrainMask, err}
		}
		if err := labels.ApplyBrainMask(mask); err != nil {
			return nil, nil, nil, &StageError{StageBrainMask, err}
		}
	}

	log.WithField("timepoints", vol.TimePoints()).Info("Calculating mean values for each ROI at each timepoint")
	ts, err := calc.Extract(vol, labels, req.AllowList)
	if err != nil {
		return nil, nil, nil, &StageError{StageExtract, err}
	}

	conn := calc.Correlate(ts)
	if !calc.SymCheck(conn.Matrix, 0) || !calc.DiagCheck(conn, 1e-12) {
		return nil, nil, nil, &StageError{StageCorrelate, errors.New("correlation matrix failed symmetry check")}
	}
	if len(conn.Degenerate) > 0 {
		log.Warn((&calc.DegenerateSeriesError{Labels: conn.Degenerate}).Error())
	}

	return ts, conn, labels, nil
}

// Run computes the connectivity matrix of req and saves it. Nothing is written unless every
// stage before the write succeeded, and a label volume that would collide with an existing
// file fails the run before the matrix is saved.
//
// Once the matrix is on disk Run always returns its Result and writes the provenance file. A
// failure saving the optional time series or label volume after that is returned alongside
// the Result, so callers can tell which files exist.
func Run(req *Request) (*Result, error) {
	ts, conn, labels, err := Compute(req)
	if err != nil {
		return nil, err
	}

	var labelVol *volume.Volume
	if req.SaveLabels != "" {
		if _, err := os.Stat(req.SaveLabels); err == nil {
			return nil, &StageError{StageWrite, fmt.Errorf("label volume %s: %w", req.SaveLabels, os.ErrExist)}
		}
		if labelVol, err = labels.Volume(); err != nil {
			return nil, &StageError{StageWrite, err}
		}
	}

	matrix := conn.Matrix
	if req.UpperTriangle {
		matrix = calc.UpperTriangle(matrix)
	}

	log.Info("Saving connectivity matrix")
	out, err := io.WriteMatrix(req.Output, matrix)
	if err != nil {
		return nil, &StageError{StageWrite, err}
	}
	res := &Result{Output: out, TimeSeries: ts, Connectivity: conn, Matrix: matrix}

	var sideErr error
	if req.SaveTimeSeries != "" {
		tsOut, err := io.WriteMatrix(req.SaveTimeSeries, ts.Series)
		if err != nil {
			sideErr = &StageError{StageWrite, err}
		} else {
			log.WithField("path", tsOut).Info("Saved ROI time series")
		}
	}

	if labelVol != nil && sideErr == nil {
		if err := volume.Write(req.SaveLabels, labelVol); err != nil {
			sideErr = &StageError{StageWrite, err}
		} else {
			log.WithField("path", req.SaveLabels).Info("Saved label volume")
		}
	}

	if req.Provenance {
		p := req.provenance(res)
		path := io.ProvenancePath(out)
		if err := io.WriteProvenance(path, p); err != nil {
			log.WithField("path", path).Warnf("Could not write provenance file: %v", err)
		} else {
			res.Provenance = path
		}
	}

	return res, sideErr
}

func (req *Request) provenance(res *Result) *io.Provenance {
	return &io.Provenance{
		Tool:          "connectome",
		Version:       Version.String(),
		Created:       time.Now().UTC().Truncate(time.Second),
		Input:         req.TimeSeries,
		Atlas:         req.Atlas,
		Masks:         req.Masks,
		AllowList:     req.AllowListPath,
		BrainMask:     req.BrainMask,
		Requested:     req.Output,
		Output:        res.Output,
		UpperTriangle: req.UpperTriangle,
		Regions:       res.Connectivity.Labels,
		TimePoints:    res.TimeSeries.TimePoints(),
		Degenerate:    res.Connectivity.Degenerate,
	}
}
