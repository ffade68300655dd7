package calc

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

func getStat(timeSeriesMat *mat64.Dense, index int) statistic {
	_, numCols := timeSeriesMat.Dims()

	first := timeSeriesMat.At(index, 0)
	constant := true
	var accVal float64
	for t := 0; t < numCols; t++ {
		value := timeSeriesMat.At(index, t)
		accVal += value
		if value != first {
			constant = false
		}
	}
	avgVal := accVal / float64(numCols)

	var accSqrDev float64
	for t := 0; t < numCols; t++ {
		dev := timeSeriesMat.At(index, t) - avgVal
		accSqrDev += dev * dev
	}

	return statistic{
		avg:      avgVal,
		ss:       accSqrDev,
		constant: constant || accSqrDev == 0,
	}
}

func pearson(timeSeriesMat *mat64.Dense, stats []statistic, from, to int) float64 {
	if stats[from].constant || stats[to].constant {
		return math.NaN()
	}
	if from == to {
		return 1
	}

	_, numCols := timeSeriesMat.Dims()
	var accProd float64
	for t := 0; t < numCols; t++ {
		accProd += (timeSeriesMat.At(from, t) - stats[from].avg) * (timeSeriesMat.At(to, t) - stats[to].avg)
	}

	r := accProd / math.Sqrt(stats[from].ss*stats[to].ss)
	return math.Max(-1, math.Min(1, r))
}

// Correlate computes the Pearson correlation between every pair of region series. A region
// with a constant series gets NaN in its whole row and column, diagonal included.
func Correlate(ts *TimeSeries) *Connectivity {
	inputRows, _ := ts.Series.Dims()

	stats := make([]statistic, inputRows)
	for i := 0; i < inputRows; i++ {
		stats[i] = getStat(ts.Series, i)
	}

	pearsonMat := mat64.NewDense(inputRows, inputRows, nil)
	for from := 0; from < inputRows; from++ {
		for to := from; to < inputRows; to++ {
			r := pearson(ts.Series, stats, from, to)
			pearsonMat.Set(from, to, r)
			pearsonMat.Set(to, from, r)
		}
	}

	var degenerate []int
	for i, s := range stats {
		if s.constant {
			degenerate = append(degenerate, ts.Labels[i])
		}
	}

	return &Connectivity{
		Labels:     append([]int(nil), ts.Labels...),
		Matrix:     pearsonMat,
		Degenerate: degenerate,
	}
}
