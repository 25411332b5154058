package datagen

import (
	"testing"
	"time"
)

func TestGetProfile(t *testing.T) {
	tests := []struct {
		name      string
		profile   string
		wantError bool
	}{
		{"uniform", "uniform", false},
		{"retail-seasonal", "retail-seasonal", false},
		{"weekend", "weekend", false},
		{"invalid profile", "invalid", true},
		{"empty profile", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := GetProfile(tt.profile)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if profile == nil || profile.Name() != tt.profile {
				t.Errorf("Expected profile %s, got %v", tt.profile, profile)
			}
		})
	}
}

func TestProfilesSorted(t *testing.T) {
	names := Profiles()
	expected := []string{"retail-seasonal", "uniform", "weekend"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %d profiles, got %v", len(expected), names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Expected %s at %d, got %s", expected[i], i, names[i])
		}
	}
}

func TestRetailSeasonalProfile(t *testing.T) {
	p, _ := GetProfile("retail-seasonal")

	tests := []struct {
		name     string
		day      time.Time
		expected float64
	}{
		{"January weekday", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 0.50},
		{"June weekday", time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), 0.70},
		{"June Saturday", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 0.84},
		{"November weekday", time.Date(2024, 11, 13, 0, 0, 0, 0, time.UTC), 0.85},
		{"December Saturday capped", time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Weight(tt.day)
			if diff := got - tt.expected; diff > 0.001 || diff < -0.001 {
				t.Errorf("Expected weight %.2f, got %.2f", tt.expected, got)
			}
		})
	}
}

func TestWeekendProfile(t *testing.T) {
	p, _ := GetProfile("weekend")

	if w := p.Weight(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)); w != 1.0 {
		t.Errorf("Expected Saturday weight 1.0, got %.2f", w)
	}
	if w := p.Weight(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)); w != 0.60 {
		t.Errorf("Expected Friday weight 0.60, got %.2f", w)
	}
	if w := p.Weight(time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)); w != 0.40 {
		t.Errorf("Expected Wednesday weight 0.40, got %.2f", w)
	}
}

func TestPickDayFollowsProfile(t *testing.T) {
	f := NewFakerWithSeed(21)
	p, _ := GetProfile("weekend")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	weekend := 0
	const n = 2000
	for i := 0; i < n; i++ {
		d := pickDay(f, p, start, end)
		if d.Before(start) || d.After(end.AddDate(0, 0, 1)) {
			t.Fatalf("Day %v outside range", d)
		}
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			weekend++
		}
	}

	// Uniform days would put about 29% on weekends; the profile about 47%.
	if share := float64(weekend) / n; share < 0.38 {
		t.Errorf("Expected weekends to dominate, got share %.2f", share)
	}
}
