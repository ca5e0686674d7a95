package units

import (
	"math"
	"testing"
)

func TestSpeedConversions(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"mps to kph", MPSToKPHValue(50), 180},
		{"kph to mph", KPHToMPHValue(180), 180 * 0.621371},
		{"zero", MPSToKPHValue(0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMetersToMillimeters(t *testing.T) {
	if got := MetersToMillimeters(0.03); got != 30.0 {
		t.Errorf("MetersToMillimeters(0.03) = %v, want 30", got)
	}
}

func TestAccelToG(t *testing.T) {
	if got := AccelToG(9.81); math.Abs(got-1) > 1e-12 {
		t.Errorf("AccelToG(9.81) = %v, want 1", got)
	}
}
