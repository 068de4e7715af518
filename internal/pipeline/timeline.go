package pipeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/neka-nat/lecturia/internal/domain"
)

// CumulativeOffsets turns per-slide audio durations plus a fixed trailing
// transition gap into the global time at which each slide ends, which is
// also the time the next slide begins. offsets[i] = sum_{j<=i}(d[j]+gap).
// Offsets must come out strictly increasing; anything else means an
// upstream duration was broken and is reported as an error rather than
// clamped.
func CumulativeOffsets(durations []float64, gapSec float64) ([]float64, error) {
	if gapSec < 0 {
		return nil, fmt.Errorf("negative transition gap %f", gapSec)
	}
	offsets := make([]float64, len(durations))
	prev := 0.0
	for i, d := range durations {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, fmt.Errorf("slide %d: invalid audio duration %f", i, d)
		}
		next := prev + d + gapSec
		if next <= prev {
			return nil, fmt.Errorf("slide %d: non-increasing offset %f after %f", i, next, prev)
		}
		offsets[i] = next
		prev = next
	}
	return offsets, nil
}

// NormalizeEvents shifts every slide's locally-timed events onto the global
// timeline, appends one synthetic slideNext per slide at its end-of-audio
// offset, follows it with a quiz event when that slide has a quiz section,
// and returns the concatenation sorted stably by time.
//
// quizNames maps 0-based slide index to the quiz-section name shown in the
// interlude. A slide with no extracted events still gets its slideNext.
func NormalizeEvents(slides [][]domain.Event, offsets []float64, quizNames map[int]string) (*domain.EventList, error) {
	if len(slides) != len(offsets) {
		return nil, fmt.Errorf("have %d slides but %d offsets", len(slides), len(offsets))
	}

	var all []domain.Event
	for i, local := range slides {
		base := 0.0
		if i > 0 {
			base = offsets[i-1]
		}
		for _, ev := range local {
			if math.IsNaN(ev.TimeSec) || ev.TimeSec < 0 {
				return nil, fmt.Errorf("slide %d: event %q has invalid local time %f", i, ev.Type, ev.TimeSec)
			}
			ev.TimeSec += base
			all = append(all, ev)
		}
		all = append(all, domain.Event{Type: domain.EventSlideNext, TimeSec: offsets[i]})
		if name, ok := quizNames[i]; ok {
			all = append(all, domain.Event{Type: domain.EventQuiz, TimeSec: offsets[i], Name: name})
		}
	}

	sort.SliceStable(all, func(a, b int) bool { return all[a].TimeSec < all[b].TimeSec })
	return &domain.EventList{Events: all}, nil
}
