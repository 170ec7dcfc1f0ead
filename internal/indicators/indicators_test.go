package indicators

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	got := SMA(values, 3)

	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Error("SMA warm-up values should be NaN")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(got[i+2]-w) > 1e-9 {
			t.Errorf("SMA[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestSMAShortSeries(t *testing.T) {
	got := SMA([]float64{1, 2}, 5)
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("SMA[%d] = %v, want NaN for series shorter than period", i, v)
		}
	}
}

func TestEMASeedsFromFirstValue(t *testing.T) {
	values := []float64{10, 10, 10, 10}
	got := EMA(values, 3)
	for i, v := range got {
		if math.Abs(v-10) > 1e-9 {
			t.Errorf("EMA[%d] = %v, want 10 for constant series", i, v)
		}
	}

	// alpha = 2/(3+1) = 0.5: ema after {2, 4} is 0.5*4 + 0.5*2 = 3.
	got = EMA([]float64{2, 4}, 3)
	if math.Abs(got[1]-3) > 1e-9 {
		t.Errorf("EMA[1] = %v, want 3", got[1])
	}
}

func TestMACDConstantSeriesIsZero(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 42.0
	}
	line, signal, hist := MACD(values, 12, 26, 9)
	last := len(values) - 1
	if math.Abs(line[last]) > 1e-9 || math.Abs(signal[last]) > 1e-9 || math.Abs(hist[last]) > 1e-9 {
		t.Errorf("MACD of constant series should be zero, got line=%v signal=%v hist=%v",
			line[last], signal[last], hist[last])
	}
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 20)
	for i := range up {
		up[i] = float64(i)
	}
	got := RSI(up, 14)
	if math.Abs(got[len(got)-1]-100) > 1e-9 {
		t.Errorf("RSI of strictly rising series = %v, want 100", got[len(got)-1])
	}

	down := make([]float64, 20)
	for i := range down {
		down[i] = float64(100 - i)
	}
	got = RSI(down, 14)
	if math.Abs(got[len(got)-1]-0) > 1e-9 {
		t.Errorf("RSI of strictly falling series = %v, want 0", got[len(got)-1])
	}
}

func TestRSIWarmup(t *testing.T) {
	values := []float64{1, 2, 1, 2, 1, 2, 1, 2}
	got := RSI(values, 5)
	for i := 0; i < 5; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("RSI[%d] = %v, want NaN during warm-up", i, got[i])
		}
	}
	if math.IsNaN(got[5]) {
		t.Error("RSI[5] should be defined after warm-up")
	}
}
