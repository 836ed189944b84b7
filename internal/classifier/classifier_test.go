package classifier

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"watchtower-sim/internal/telemetry"
)

func TestClassifyScenarios(t *testing.T) {
	cases := []struct {
		name      string
		hr, st    float64
		score     float64
		anomalous bool
		status    Status
	}{
		{"poison", 185, 100, 0.95, true, StatusBreach},
		{"fatigue", 110, 15, 0.80, true, StatusBreach},
		{"secure", 75, 90, 0, false, StatusSecure},
		{"heart rate boundary", 170, 100, 0, false, StatusSecure},
		{"just above boundary", 170.0001, 100, 0.95, true, StatusBreach},
		{"stamina boundary", 150, 20, 0, false, StatusSecure},
		{"just below stamina boundary", 150, 19.9, 0.80, true, StatusBreach},
		{"low stamina resting", 100, 5, 0, false, StatusSecure},
		{"poison outranks fatigue", 190, 5, 0.95, true, StatusBreach},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := telemetry.Event{SoldierID: 4, HeartRate: tc.hr, Stamina: tc.st, Timestamp: 1}
			v, err := Classify(ev)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if v.AnomalyScore != tc.score || v.IsAnomalous != tc.anomalous || v.Status != tc.status {
				t.Fatalf("got %+v, want score=%v anomalous=%v status=%s", v, tc.score, tc.anomalous, tc.status)
			}
			if v.SoldierID != 4 {
				t.Fatalf("soldier id=%d, want 4", v.SoldierID)
			}
		})
	}
}

func TestClassifyInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 10000; i++ {
		ev := telemetry.Event{
			SoldierID: int64(i),
			HeartRate: r.Float64() * 250,
			Stamina:   r.Float64() * 100,
		}
		v, err := Classify(ev)
		if err != nil {
			t.Fatalf("Classify(%+v): %v", ev, err)
		}
		if v.IsAnomalous != (v.Status == StatusBreach) {
			t.Fatalf("flag/status mismatch: %+v", v)
		}
		switch v.AnomalyScore {
		case 0:
			if v.IsAnomalous {
				t.Fatalf("zero score on anomalous verdict: %+v", v)
			}
		case FatigueScore, PoisonScore:
			if !v.IsAnomalous {
				t.Fatalf("positive score on secure verdict: %+v", v)
			}
		default:
			t.Fatalf("unexpected score %v", v.AnomalyScore)
		}
		again, _ := Classify(ev)
		if again != v {
			t.Fatalf("classification not idempotent: %+v vs %+v", v, again)
		}
	}
}

func TestClassifyInvalid(t *testing.T) {
	cases := []telemetry.Event{
		{HeartRate: math.NaN(), Stamina: 100},
		{HeartRate: 80, Stamina: math.Inf(1)},
		{HeartRate: 80, Stamina: 100, Timestamp: math.Inf(-1)},
		{HeartRate: -1, Stamina: 100},
		{HeartRate: 80, Stamina: -5},
	}
	for _, ev := range cases {
		v, err := Classify(ev)
		if err == nil {
			t.Fatalf("expected error for %+v, got %+v", ev, v)
		}
		if !errors.Is(err, ErrInvalidReading) {
			t.Fatalf("error %v does not wrap ErrInvalidReading", err)
		}
		var re *ReadingError
		if !errors.As(err, &re) || re.Field == "" {
			t.Fatalf("expected *ReadingError, got %T", err)
		}
		if v.Status == StatusSecure {
			t.Fatalf("invalid reading must not be SECURE")
		}
	}
}

func TestClassifyConcurrent(t *testing.T) {
	const n = 64
	var wg sync.WaitGroup
	results := make([]Verdict, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hr := 75.0
			if i%2 == 0 {
				hr = 185
			}
			results[i], _ = Classify(telemetry.Event{SoldierID: int64(i), HeartRate: hr, Stamina: 100})
		}(i)
	}
	wg.Wait()
	for i, v := range results {
		if v.SoldierID != int64(i) {
			t.Fatalf("verdict %d carries soldier %d", i, v.SoldierID)
		}
		if want := i%2 == 0; v.IsAnomalous != want {
			t.Fatalf("verdict %d anomalous=%v, want %v", i, v.IsAnomalous, want)
		}
	}
}
