package pipeline

import (
	"math"
	"sort"

	"github.com/neka-nat/lecturia/internal/domain"
)

// Interval is a half-open time range [Start, End) in seconds.
type Interval struct {
	Start float64
	End   float64
}

func (iv Interval) valid() bool { return iv.Start < iv.End }

// mergeIntervals sorts and collapses overlapping or abutting intervals
// into maximal disjoint ranges. Degenerate inputs are dropped.
func mergeIntervals(in []Interval) []Interval {
	ivs := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.valid() {
			ivs = append(ivs, iv)
		}
	}
	sort.Slice(ivs, func(a, b int) bool {
		if ivs[a].Start != ivs[b].Start {
			return ivs[a].Start < ivs[b].Start
		}
		return ivs[a].End < ivs[b].End
	})

	var out []Interval
	for _, iv := range ivs {
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func unionIntervals(a, b []Interval) []Interval {
	return mergeIntervals(append(append([]Interval{}, a...), b...))
}

// subtractIntervals removes every range in b from the set a. A removal in
// the middle of a range splits it in two.
func subtractIntervals(a, b []Interval) []Interval {
	a = mergeIntervals(a)
	b = mergeIntervals(b)

	var out []Interval
	for _, iv := range a {
		pieces := []Interval{iv}
		for _, cut := range b {
			var next []Interval
			for _, p := range pieces {
				if cut.End <= p.Start || cut.Start >= p.End {
					next = append(next, p)
					continue
				}
				if cut.Start > p.Start {
					next = append(next, Interval{Start: p.Start, End: cut.Start})
				}
				if cut.End < p.End {
					next = append(next, Interval{Start: cut.End, End: p.End})
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return mergeIntervals(out)
}

// collectPoseRanges extracts the maximal spans during which a target holds
// the named pose: each span opens at a matching pose event and closes at
// that target's next pose event. A span still open after the last event
// extends to +Inf.
func collectPoseRanges(events []domain.Event, pose string, target domain.Side) []Interval {
	var out []Interval
	open := math.NaN()
	for _, ev := range events {
		if ev.Type != domain.EventPose || ev.Target != target {
			continue
		}
		if ev.Name == pose && math.IsNaN(open) {
			open = ev.TimeSec
		} else if !math.IsNaN(open) {
			out = append(out, Interval{Start: open, End: ev.TimeSec})
			open = math.NaN()
		}
	}
	if !math.IsNaN(open) {
		out = append(out, Interval{Start: open, End: math.Inf(1)})
	}
	return out
}

// RewriteTalkIntervals reconciles LLM-estimated talk cues with the detected
// non-silent spans of the slide's audio, per target. For each target the
// union of estimated talk ranges and detected speech ranges, minus its
// point (emphasis) ranges, becomes the corrected talking set; each final
// range [s, e) is re-emitted as pose(talk, s) / pose(idle, e). Talk and
// idle pose events for the targets are replaced; everything else is
// preserved. Open-ended ranges are clamped to clipDurationSec so the
// timeline stays finite.
func RewriteTalkIntervals(ev *domain.EventList, nonsilent []Interval, targets []domain.Side, clipDurationSec float64) *domain.EventList {
	// Single-speaker cue extraction emits poses without a target. The
	// renderer drives the right-side character for those, so the rewrite
	// has to claim them as well or the stale cues survive next to the
	// corrected ones.
	events := make([]domain.Event, len(ev.Events))
	copy(events, ev.Events)
	for i := range events {
		if events[i].Type == domain.EventPose && events[i].Target == "" {
			events[i].Target = domain.SideRight
		}
	}

	preserved := make([]domain.Event, 0, len(events))
	targetSet := make(map[domain.Side]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}
	for _, e := range events {
		if e.Type == domain.EventPose && targetSet[e.Target] && (e.Name == domain.PoseTalk || e.Name == domain.PoseIdle) {
			continue
		}
		preserved = append(preserved, e)
	}

	synthesized := make([]domain.Event, 0)
	for _, tgt := range targets {
		talk := collectPoseRanges(events, domain.PoseTalk, tgt)
		point := collectPoseRanges(events, domain.PosePoint, tgt)
		final := subtractIntervals(unionIntervals(talk, nonsilent), point)
		for _, iv := range final {
			end := iv.End
			if math.IsInf(end, 1) || end > clipDurationSec {
				end = math.Max(clipDurationSec, iv.Start)
			}
			synthesized = append(synthesized,
				domain.Event{Type: domain.EventPose, Name: domain.PoseTalk, TimeSec: iv.Start, Target: tgt},
				domain.Event{Type: domain.EventPose, Name: domain.PoseIdle, TimeSec: end, Target: tgt},
			)
		}
	}

	merged := append(preserved, synthesized...)
	sort.SliceStable(merged, func(a, b int) bool { return merged[a].TimeSec < merged[b].TimeSec })
	return &domain.EventList{Events: merged}
}
