package eta

import "testing"

func TestComputeNormalSpeed(t *testing.T) {
	// 5000m at 36 km/h (10 m/s) = 500s.
	got := Compute(5000, 36)
	if got == nil || *got != 500 {
		t.Fatalf("got %v, want 500", got)
	}
}

func TestComputeStoppedTramUsesFloor(t *testing.T) {
	// 1000m at the 5 km/h floor (~1.389 m/s) = 720s.
	got := Compute(1000, 0)
	if got == nil || *got != 720 {
		t.Fatalf("got %v, want 720", got)
	}
}

func TestComputeBeyondHorizonIsNil(t *testing.T) {
	got := Compute(5_000_000, 36)
	if got != nil {
		t.Fatalf("got %v, want nil", *got)
	}
}

func TestComputeNegativeRemainingClampsToZero(t *testing.T) {
	got := Compute(-50, 36)
	if got == nil || *got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestComputeNeverNegative(t *testing.T) {
	for _, speed := range []float64{0, 5, 36, 100} {
		got := Compute(1, speed)
		if got != nil && *got < 0 {
			t.Errorf("speed %f: got negative eta %d", speed, *got)
		}
	}
}
