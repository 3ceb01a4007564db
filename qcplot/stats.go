package qcplot

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Summary holds the QC statistics of a set of pixel or column values.
// Non-finite values are ignored.
type Summary struct {
	N      int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
	Q1     float64
	Q3     float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d median=%.4g mean=%.4g std=%.4g q1=%.4g q3=%.4g min=%.4g max=%.4g",
		s.N, s.Median, s.Mean, s.StdDev, s.Q1, s.Q3, s.Min, s.Max)
}

func finiteValues(values []float64) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

// Summarize computes the statistics of values.
func Summarize(values []float64) (Summary, error) {
	data := finiteValues(values)
	if len(data) == 0 {
		return Summary{}, ErrNoData
	}

	s := Summary{N: len(data)}
	var err error
	if s.Min, err = stats.Min(data); err != nil {
		return Summary{}, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return Summary{}, err
	}
	if s.Mean, err = stats.Mean(data); err != nil {
		return Summary{}, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Summary{}, err
	}
	if s.StdDev, err = stats.StandardDeviation(data); err != nil {
		return Summary{}, err
	}
	s.Q1, s.Q3 = s.Median, s.Median
	if len(data) > 1 {
		q, err := stats.Quartile(data)
		if err != nil {
			return Summary{}, err
		}
		s.Q1, s.Q3 = q.Q1, q.Q3
	}
	return s, nil
}

// arcLimits spreads the display range 30 quartile distances either side of
// the median, which keeps faint arc lines visible.
func arcLimits(values []float64) (lo, hi float64, err error) {
	s, err := Summarize(values)
	if err != nil {
		return 0, 0, err
	}
	lo = s.Median - 30*(s.Median-s.Q1)
	hi = s.Median + 30*(s.Q3-s.Median)
	return lo, hi, nil
}

// brightestRow returns the zero based row with the largest positive median.
// Rows that are all blank or never positive leave row 0 selected.
func brightestRow(rows [][]float64) int {
	best, bestMedian := 0, 0.0
	for i, row := range rows {
		m, err := stats.Median(finiteValues(row))
		if err != nil {
			continue
		}
		if m > bestMedian {
			best, bestMedian = i, m
		}
	}
	return best
}
