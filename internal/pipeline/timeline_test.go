package pipeline

import (
	"math"
	"testing"

	"github.com/neka-nat/lecturia/internal/domain"
)

func TestCumulativeOffsets(t *testing.T) {
	offsets, err := CumulativeOffsets([]float64{4.0, 6.0}, 0.5)
	if err != nil {
		t.Fatalf("CumulativeOffsets: %v", err)
	}
	want := []float64{4.5, 11.0}
	if len(offsets) != len(want) {
		t.Fatalf("got %v, want %v", offsets, want)
	}
	for i := range want {
		if math.Abs(offsets[i]-want[i]) > 1e-9 {
			t.Fatalf("offset[%d] = %f, want %f", i, offsets[i], want[i])
		}
	}
}

func TestCumulativeOffsetsStrictlyIncreasing(t *testing.T) {
	durations := []float64{1.2, 0.0, 3.7, 0.4}
	offsets, err := CumulativeOffsets(durations, 0.5)
	if err != nil {
		t.Fatalf("CumulativeOffsets: %v", err)
	}
	prev := 0.0
	for i, off := range offsets {
		if off <= prev {
			t.Fatalf("offset[%d] = %f not greater than %f", i, off, prev)
		}
		if off < prev+durations[i] {
			t.Fatalf("offset[%d] = %f < prev+duration %f", i, off, prev+durations[i])
		}
		prev = off
	}
}

func TestCumulativeOffsetsRejectsBadInput(t *testing.T) {
	if _, err := CumulativeOffsets([]float64{1.0, -0.5}, 0.5); err == nil {
		t.Fatal("negative duration must be rejected")
	}
	if _, err := CumulativeOffsets([]float64{1.0}, -1); err == nil {
		t.Fatal("negative gap must be rejected")
	}
	if _, err := CumulativeOffsets([]float64{0.0}, 0.0); err == nil {
		t.Fatal("non-increasing offset must be rejected")
	}
	if _, err := CumulativeOffsets([]float64{math.NaN()}, 0.5); err == nil {
		t.Fatal("NaN duration must be rejected")
	}
}

func TestNormalizeEventsEndToEnd(t *testing.T) {
	offsets := []float64{4.5, 11.0}
	slides := [][]domain.Event{
		{{Type: domain.EventPose, Name: domain.PoseTalk, TimeSec: 0.0}},
		{{Type: domain.EventPose, Name: domain.PoseTalk, TimeSec: 1.0}},
	}

	list, err := NormalizeEvents(slides, offsets, nil)
	if err != nil {
		t.Fatalf("NormalizeEvents: %v", err)
	}

	var talks, nexts []float64
	for _, ev := range list.Events {
		switch {
		case ev.Type == domain.EventPose && ev.Name == domain.PoseTalk:
			talks = append(talks, ev.TimeSec)
		case ev.Type == domain.EventSlideNext:
			nexts = append(nexts, ev.TimeSec)
		}
	}
	if len(talks) != 2 || talks[0] != 0.0 || talks[1] != 5.5 {
		t.Fatalf("talk times %v, want [0 5.5]", talks)
	}
	if len(nexts) != 2 || nexts[0] != 4.5 || nexts[1] != 11.0 {
		t.Fatalf("slideNext times %v, want [4.5 11]", nexts)
	}
}

func TestNormalizeEventsSorted(t *testing.T) {
	offsets := []float64{3.0, 6.0, 9.0}
	slides := [][]domain.Event{
		{{Type: domain.EventSlideStep, TimeSec: 2.5}, {Type: domain.EventSlideStep, TimeSec: 0.5}},
		{},
		{{Type: domain.EventPose, Name: domain.PoseIdle, TimeSec: 1.0}},
	}

	list, err := NormalizeEvents(slides, offsets, nil)
	if err != nil {
		t.Fatalf("NormalizeEvents: %v", err)
	}
	prev := -1.0
	nextCount := 0
	for _, ev := range list.Events {
		if ev.TimeSec < prev {
			t.Fatalf("events not sorted: %f after %f", ev.TimeSec, prev)
		}
		prev = ev.TimeSec
		if ev.Type == domain.EventSlideNext {
			nextCount++
		}
	}
	if nextCount != 3 {
		t.Fatalf("got %d slideNext events, want one per slide", nextCount)
	}
}

func TestNormalizeEventsEmptySlideStillAdvances(t *testing.T) {
	list, err := NormalizeEvents([][]domain.Event{{}}, []float64{2.0}, nil)
	if err != nil {
		t.Fatalf("NormalizeEvents: %v", err)
	}
	if len(list.Events) != 1 || list.Events[0].Type != domain.EventSlideNext || list.Events[0].TimeSec != 2.0 {
		t.Fatalf("got %+v, want single slideNext at 2.0", list.Events)
	}
}

func TestNormalizeEventsQuizFollowsSlideNext(t *testing.T) {
	list, err := NormalizeEvents(
		[][]domain.Event{{}, {}},
		[]float64{3.0, 7.0},
		map[int]string{1: "Checkpoint"},
	)
	if err != nil {
		t.Fatalf("NormalizeEvents: %v", err)
	}

	// The quiz shares its slide's end offset but must come after slideNext.
	var atSeven []domain.Event
	for _, ev := range list.Events {
		if ev.TimeSec == 7.0 {
			atSeven = append(atSeven, ev)
		}
	}
	if len(atSeven) != 2 {
		t.Fatalf("events at 7.0: %+v", atSeven)
	}
	if atSeven[0].Type != domain.EventSlideNext || atSeven[1].Type != domain.EventQuiz {
		t.Fatalf("order at 7.0 wrong: %+v", atSeven)
	}
	if atSeven[1].Name != "Checkpoint" {
		t.Fatalf("quiz name %q, want Checkpoint", atSeven[1].Name)
	}
}

func TestNormalizeEventsRejectsMismatch(t *testing.T) {
	if _, err := NormalizeEvents([][]domain.Event{{}}, []float64{1.0, 2.0}, nil); err == nil {
		t.Fatal("slide/offset length mismatch must be rejected")
	}
	if _, err := NormalizeEvents(
		[][]domain.Event{{{Type: domain.EventPose, TimeSec: -1}}},
		[]float64{1.0}, nil,
	); err == nil {
		t.Fatal("negative local time must be rejected")
	}
}
