package media

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?\d+(?:\.\d+)?)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?\d+(?:\.\d+)?)`)
)

// nonSilentRanges inverts the silencedetect log over [0, total). Silences
// touching the ends of the track produce no leading/trailing range; a
// silence_start with no matching silence_end runs to the end of the track.
func nonSilentRanges(ffmpegLog string, total float64) []Range {
	type span struct{ start, end float64 }
	var silences []span
	var open *span

	for _, line := range strings.Split(ffmpegLog, "\n") {
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if v < 0 {
				v = 0
			}
			open = &span{start: v, end: total}
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && open != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if v > total {
				v = total
			}
			open.end = v
			silences = append(silences, *open)
			open = nil
		}
	}
	if open != nil {
		silences = append(silences, *open)
	}

	var out []Range
	cursor := 0.0
	for _, sp := range silences {
		if sp.start > cursor {
			out = append(out, Range{StartSec: cursor, EndSec: sp.start})
		}
		if sp.end > cursor {
			cursor = sp.end
		}
	}
	if cursor < total {
		out = append(out, Range{StartSec: cursor, EndSec: total})
	}
	return out
}
