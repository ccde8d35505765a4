package audio

import "testing"

func TestClampGain(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{1, 1},
		{2, 2},
		{3.5, 2},
	}
	for _, c := range cases {
		if got := clampGain(c.in); got != c.want {
			t.Errorf("clampGain(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestApplyGainScales(t *testing.T) {
	samples := []int16{100, -100, 0}
	applyGain(samples, 0.5)
	if samples[0] != 50 || samples[1] != -50 || samples[2] != 0 {
		t.Errorf("unexpected scaled samples: %v", samples)
	}
}

func TestApplyGainSaturates(t *testing.T) {
	samples := []int16{30000, -30000}
	applyGain(samples, 2)
	if samples[0] != 32767 {
		t.Errorf("expected positive saturation at 32767, got %d", samples[0])
	}
	if samples[1] != -32768 {
		t.Errorf("expected negative saturation at -32768, got %d", samples[1])
	}
}

func TestApplyGainUnityIsUntouched(t *testing.T) {
	samples := []int16{123, -456}
	applyGain(samples, 1.0)
	if samples[0] != 123 || samples[1] != -456 {
		t.Errorf("unity gain must not change samples: %v", samples)
	}
}
