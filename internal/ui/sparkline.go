package ui

import "slices"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders throughput samples as exactly width block characters,
// scaled to the largest sample. Short input is padded on the left.
func Sparkline(samples []int64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	var peak int64
	if len(samples) > 0 {
		peak = slices.Max(samples)
	}

	out := make([]rune, 0, width)
	for range width - len(samples) {
		out = append(out, sparkBlocks[0])
	}
	top := len(sparkBlocks) - 1
	for _, v := range samples {
		if peak <= 0 || v <= 0 {
			out = append(out, sparkBlocks[0])
			continue
		}
		out = append(out, sparkBlocks[min(int(v*int64(top)/peak), top)])
	}
	return string(out)
}
