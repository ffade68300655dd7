// Package batch runs the connectivity pipeline over many time series volumes at once.
package batch

import (
	"fmt"
	"os"
	"sync"

	"github.com/KyungWonPark/connectome/internal/calc"
	"github.com/KyungWonPark/connectome/internal/io"
	"github.com/KyungWonPark/connectome/internal/pipeline"
	log "github.com/sirupsen/logrus"
)

// Func processes one request. pipeline.Run in production.
type Func func(req *pipeline.Request) (*pipeline.Result, error)

// Outcome is the result of one job. Result is set whenever the matrix was saved, which can
// happen alongside an Err from a later optional write.
type Outcome struct {
	Request *pipeline.Request
	Result  *pipeline.Result
	Err     error
}

// Jobs builds one request per input from tmpl. Every output gets a random name in outDir,
// since many inputs share a file name; the provenance file records which input it came from.
func Jobs(inputs []string, outDir string, tmpl pipeline.Request) ([]*pipeline.Request, error) {
	info, err := os.Stat(outDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", outDir)
	}

	reqs := make([]*pipeline.Request, len(inputs))
	for i, input := range inputs {
		req := tmpl
		req.TimeSeries = input
		req.Output = io.TempName(outDir)
		req.Provenance = true
		req.SaveLabels = ""
		req.SaveTimeSeries = ""
		reqs[i] = &req
	}
	return reqs, nil
}

// Run processes reqs with the given number of workers. A failed job is logged and reported
// in its Outcome; the other jobs still run. Outcomes are in request order.
func Run(reqs []*pipeline.Request, workers int, fn Func) []Outcome {
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]Outcome, len(reqs))

	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(len(reqs))
	for i := 0; i < workers; i++ {
		go process(reqs, outcomes, fn, order, &wg)
	}

	for i := range reqs {
		order <- i
	}

	wg.Wait()
	close(order)

	return outcomes
}

func process(reqs []*pipeline.Request, outcomes []Outcome, fn Func, order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if !ok {
			return
		}

		req := reqs[index]
		res, err := fn(req)
		outcomes[index] = Outcome{Request: req, Result: res, Err: err}
		if err != nil {
			entry := log.WithField("input", req.TimeSeries)
			if res != nil {
				entry = entry.WithField("output", res.Output)
			}
			entry.Errorf("Job %d of %d failed: %v", index+1, len(reqs), err)
		} else {
			log.WithFields(log.Fields{
				"input":  req.TimeSeries,
				"output": res.Output,
			}).Infof("Job %d of %d done", index+1, len(reqs))
		}

		wg.Done()
	}
}

// Failed counts the outcomes that carry an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// GroupMean averages the connectivity matrices of every successful outcome.
func GroupMean(outcomes []Outcome) (*calc.Connectivity, error) {
	var conns []*calc.Connectivity
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil {
			conns = append(conns, o.Result.Connectivity)
		}
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("no successful jobs to average")
	}
	return calc.Mean(conns)
}
