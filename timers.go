package bucketd

import (
	"math"
	"sort"
)

// Summary is used for exporting a timer or histogram series.
type Summary struct {
	Count  int     // The number of values in the series
	Min    float64 // The minimum value of the series
	Max    float64 // The maximum value of the series
	Sum    float64 // The sum of the series
	Mean   float64 // The mean of the series
	Median float64 // The median of the series
	StdDev float64 // The population standard deviation of the series
}

// Summarize computes a Summary over values. The input slice is not reordered.
func Summarize(values []float64) Summary {
	count := len(values)
	if count == 0 {
		return Summary{}
	}

	sorted := make([]float64, count)
	copy(sorted, values)
	sort.Float64s(sorted)

	s := Summary{
		Count: count,
		Min:   sorted[0],
		Max:   sorted[count-1],
	}
	for _, v := range sorted {
		s.Sum += v
	}
	s.Mean = s.Sum / float64(count)

	mid := count / 2
	if count%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}

	sumOfDiffs := float64(0)
	for _, v := range sorted {
		sumOfDiffs += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(sumOfDiffs / float64(count))

	return s
}
