package viz

import "sort"

type indexedSample struct {
	index int
	value float64
}

type indexedSamples []indexedSample

func (i indexedSamples) Len() int {
	return len(i)
}

// sort in reverse order
func (is indexedSamples) Less(i, j int) bool {
	return is[i].value > is[j].value
}

func (is indexedSamples) Swap(i, j int) {
	is[i], is[j] = is[j], is[i]
}

// findPeaks returns the indexes of up to numPeaks local maxima, strongest first. A bin
// is a local maximum when it is the largest in the window centred on it.
func findPeaks(values []float64, windowSize, numPeaks int) []int {
	peaks := make(indexedSamples, 0)
	for i := 0; i+windowSize <= len(values); i++ {
		max := values[i]
		maxIdx := 0
		for j := i + 1; j < windowSize+i; j++ {
			if values[j] > max {
				maxIdx = j - i
				max = values[j]
			}
		}

		if maxIdx == windowSize/2 && max > 0 {
			peaks = append(peaks, indexedSample{index: maxIdx + i, value: max})
		}
	}

	sort.Sort(peaks)

	ret := make([]int, 0, numPeaks)
	for i := 0; i < numPeaks && i < len(peaks); i++ {
		ret = append(ret, peaks[i].index)
	}
	return ret
}
