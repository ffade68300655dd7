package main

import (
	"errors"
	"fmt"
	goio "io"
	"os"

	"github.com/KyungWonPark/connectome/internal/batch"
	"github.com/KyungWonPark/connectome/internal/calc"
	"github.com/KyungWonPark/connectome/internal/config"
	"github.com/KyungWonPark/connectome/internal/io"
	"github.com/KyungWonPark/connectome/internal/pipeline"
	"github.com/KyungWonPark/connectome/internal/roi"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var (
	cfg       *config.Config
	logCloser goio.Closer
)

func main() {
	app := cli.NewApp()
	app.Name = "connectome"
	app.Usage = "Extract ROI time series from rs-fMRI volumes and save their correlation matrix"
	app.Version = pipeline.Version.String()

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: config.DefaultPath,
			Usage: "YAML configuration file",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log debug messages",
		},
	}

	app.Before = func(c *cli.Context) error {
		var err error
		cfg, err = config.LoadConfig(c.GlobalString("config"))
		if err != nil {
			return err
		}
		if c.GlobalBool("verbose") {
			cfg.Logging.Verbose = true
		}
		logCloser = cfg.Logging.SetLogger()
		return nil
	}

	roiFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "aseg, a",
			Usage: "3D segmentation/parcellation volume, one label per ROI",
		},
		cli.StringFlag{
			Name:  "bmasks, b",
			Usage: "Text file listing paths (one per line) to binary ROI masks",
		},
		cli.BoolFlag{
			Name:  "fs",
			Usage: "Keep only the labels of the allow list (FreeSurfer grey matter by default)",
		},
		cli.StringFlag{
			Name:  "allow-list",
			Usage: "Two column \"name,label\" CSV used by --fs; overrides the config file",
		},
		cli.StringFlag{
			Name:  "brain-mask",
			Usage: "3D mask; voxels outside it are left out of every ROI",
		},
		cli.BoolFlag{
			Name:  "uptri",
			Usage: "Set the lower left triangle of the matrix to zero",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "extract",
			Usage: "Build the connectivity matrix of one 4D time series volume",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "4D NIfTI volume with preprocessed fMRI data",
				},
				cli.StringFlag{
					Name:  "output, o",
					Usage: "Output .npy file; the extension is added when missing",
				},
				cli.StringFlag{
					Name:  "save-timeseries",
					Usage: "Also save the ROI mean time series to this .npy file",
				},
				cli.StringFlag{
					Name:  "save-labels",
					Usage: "Also save the merged label volume to this .nii/.nii.gz file",
				},
				cli.BoolFlag{
					Name:  "shm",
					Usage: "Also copy the matrix into a new System V shared memory segment",
				},
			}, roiFlags...),
			Action: extract,
		},
		{
			Name:  "batch",
			Usage: "Build one connectivity matrix per listed time series volume",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "Text file listing paths (one per line) to 4D time series volumes",
				},
				cli.StringFlag{
					Name:  "outdir, d",
					Usage: "Directory for the randomly named matrices and their .txt companions",
				},
				cli.IntFlag{
					Name:  "workers, w",
					Usage: "Number of volumes processed at once (default from config)",
				},
				cli.StringFlag{
					Name:  "mean",
					Usage: "Also save the mean matrix of all successful volumes to this .npy file",
				},
			}, roiFlags...),
			Action: runBatch,
		},
		{
			Name:      "show",
			Usage:     "Print a .npy matrix as CSV",
			ArgsUsage: "matrix.npy",
			Action:    show,
		},
		{
			Name:      "init-config",
			Usage:     "Write the default configuration to a YAML file",
			ArgsUsage: "[connectome.yaml]",
			Action:    initConfig,
		},
	}

	err := app.Run(os.Args)
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// request fills the ROI settings shared by extract and batch.
func request(c *cli.Context) (*pipeline.Request, error) {
	req := &pipeline.Request{
		Atlas:         c.String("aseg"),
		BrainMask:     c.String("brain-mask"),
		UpperTriangle: c.Bool("uptri") || cfg.Output.UpperTriangle,
		Provenance:    cfg.Output.Provenance,
	}
	if req.BrainMask == "" {
		req.BrainMask = cfg.BrainMask
	}

	if c.String("aseg") != "" && c.String("bmasks") != "" {
		return nil, pipeline.ErrROISource
	}
	if list := c.String("bmasks"); list != "" {
		masks, err := io.ReadPathList(list)
		if err != nil {
			return nil, err
		}
		req.Masks = masks
	}
	if req.Atlas == "" && len(req.Masks) == 0 {
		return nil, errors.New("need to specify segmentation(s) with -a or -b")
	}

	if c.Bool("fs") || c.String("allow-list") != "" {
		path := c.String("allow-list")
		if path == "" {
			path = cfg.AllowList
		}
		if path == "" {
			return nil, errors.New("--fs needs an allow list; set allowList in the config or pass --allow-list")
		}
		allow, err := roi.LoadAllowList(path)
		if err != nil {
			return nil, err
		}
		req.AllowList = allow
		req.AllowListPath = path
	}

	for _, path := range append([]string{req.Atlas, req.BrainMask}, req.Masks...) {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func extract(c *cli.Context) error {
	req, err := request(c)
	if err != nil {
		return err
	}
	req.TimeSeries = c.String("input")
	req.Output = c.String("output")
	req.SaveTimeSeries = c.String("save-timeseries")
	req.SaveLabels = c.String("save-labels")

	if req.TimeSeries == "" || req.Output == "" {
		return errors.New("need both --input and --output")
	}
	if _, err := os.Stat(req.TimeSeries); err != nil {
		return err
	}

	res, err := pipeline.Run(req)
	if err != nil {
		if res != nil {
			log.WithField("output", res.Output).Warn("Connectivity matrix saved before the failure")
		}
		return err
	}
	log.WithFields(log.Fields{
		"regions": len(res.Connectivity.Labels),
		"output":  res.Output,
	}).Info("Connectivity matrix saved")

	if c.Bool("shm") {
		id, err := io.Mat64toShm(res.Matrix)
		if err != nil {
			return err
		}
		fmt.Printf("shm id: %d\n", id)
	}

	fmt.Println(res.Output)
	return nil
}

func runBatch(c *cli.Context) error {
	tmpl, err := request(c)
	if err != nil {
		return err
	}

	if c.String("input") == "" {
		return errors.New("need --input listing the time series volumes")
	}
	inputs, err := io.ReadPathList(c.String("input"))
	if err != nil {
		return err
	}

	outDir := c.String("outdir")
	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	reqs, err := batch.Jobs(inputs, outDir, *tmpl)
	if err != nil {
		return err
	}

	workers := cfg.Batch.Workers
	if c.Int("workers") > 0 {
		workers = c.Int("workers")
	}

	log.WithFields(log.Fields{
		"jobs":    len(reqs),
		"workers": workers,
	}).Info("Starting batch")
	outcomes := batch.Run(reqs, workers, pipeline.Run)

	for _, o := range outcomes {
		if o.Err == nil {
			fmt.Printf("%s\t%s\n", o.Request.TimeSeries, o.Result.Output)
		}
	}

	if path := c.String("mean"); path != "" {
		mean, err := batch.GroupMean(outcomes)
		if err != nil {
			return err
		}
		matrix := mean.Matrix
		if tmpl.UpperTriangle {
			matrix = calc.UpperTriangle(matrix)
		}
		out, err := io.WriteMatrix(path, matrix)
		if err != nil {
			return err
		}
		log.WithField("output", out).Info("Group mean matrix saved")
	}

	if n := batch.Failed(outcomes); n > 0 {
		return fmt.Errorf("%d of %d volumes failed", n, len(outcomes))
	}
	return nil
}

func show(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("need exactly one .npy file")
	}
	m, err := io.NpytoMat64(c.Args().First())
	if err != nil {
		return err
	}
	return io.Mat64toCSV(os.Stdout, m)
}

func initConfig(c *cli.Context) error {
	path := config.DefaultPath
	if c.NArg() > 0 {
		path = c.Args().First()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return config.SaveConfig(config.DefaultConfig(), path)
}
