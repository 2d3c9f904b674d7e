package stops

import (
	"testing"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

func sampleDirection() (*domain.DirectionGeometry, []int) {
	dg := &domain.DirectionGeometry{
		Stops:         []domain.Stop{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}, {ID: 4, Name: "D"}},
		DistanceAlong: []float64{0, 1000, 2000, 3000},
	}
	return dg, []int{0, 1, 2, 3}
}

func TestDetectMidRoute(t *testing.T) {
	dg, order := sampleDirection()
	prev, next, _ := Detect(dg, order, 1500)

	if prev == nil || prev.ID != 2 {
		t.Fatalf("prev = %+v, want stop 2", prev)
	}
	if len(next) != 2 || next[0].ID != 3 || next[1].ID != 4 {
		t.Fatalf("next = %+v, want [3, 4]", next)
	}
}

func TestDetectBeforeFirstStopHasNoPrev(t *testing.T) {
	dg, order := sampleDirection()
	prev, next, _ := Detect(dg, order, -10)

	if prev != nil {
		t.Errorf("prev = %+v, want nil", prev)
	}
	if len(next) != 4 {
		t.Fatalf("next = %+v, want all 4 stops", next)
	}
}

func TestDetectAfterLastStopHasNoNext(t *testing.T) {
	dg, order := sampleDirection()
	prev, next, _ := Detect(dg, order, 5000)

	if prev == nil || prev.ID != 4 {
		t.Fatalf("prev = %+v, want stop 4", prev)
	}
	if len(next) != 0 {
		t.Errorf("next = %+v, want none", next)
	}
}

func TestDetectCapsAtFiveNextStops(t *testing.T) {
	dg := &domain.DirectionGeometry{DistanceAlong: make([]float64, 8)}
	order := make([]int, 8)
	for i := 0; i < 8; i++ {
		dg.Stops = append(dg.Stops, domain.Stop{ID: i + 1})
		dg.DistanceAlong[i] = float64(i * 1000)
		order[i] = i
	}

	_, next, _ := Detect(dg, order, -1)
	if len(next) != 5 {
		t.Fatalf("got %d next stops, want 5", len(next))
	}
}

func TestDetectExactMatchCountsAsPrev(t *testing.T) {
	dg, order := sampleDirection()
	prev, next, _ := Detect(dg, order, 1000)

	if prev == nil || prev.ID != 2 {
		t.Fatalf("prev = %+v, want stop 2 (exact match counts as reached)", prev)
	}
	if len(next) != 2 || next[0].ID != 3 {
		t.Fatalf("next = %+v, want starting at stop 3", next)
	}
}
