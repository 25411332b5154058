package datagen

import (
	"fmt"
	"sort"
	"time"
)

// Profile shapes how sales are spread over the calendar.
type Profile interface {
	// Name returns the profile name.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Weight returns the relative sales volume of a day (0.0 to 1.0).
	Weight(day time.Time) float64
}

var registry = make(map[string]func() Profile)

// Register adds a profile constructor to the registry.
func Register(name string, constructor func() Profile) {
	registry[name] = constructor
}

// GetProfile retrieves a profile by name.
func GetProfile(name string) (Profile, error) {
	constructor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile: %s", name)
	}
	return constructor(), nil
}

// Profiles returns all registered profile names, sorted.
func Profiles() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("uniform", NewUniform)
	Register("retail-seasonal", NewRetailSeasonal)
	Register("weekend", NewWeekend)
}

// Uniform spreads sales evenly over every day.
type Uniform struct{}

// NewUniform creates a new Uniform profile.
func NewUniform() Profile {
	return Uniform{}
}

func (Uniform) Name() string {
	return "uniform"
}

func (Uniform) Description() string {
	return "Same volume every day"
}

func (Uniform) Weight(time.Time) float64 {
	return 1.0
}

// RetailSeasonal follows a high street retail year.
// January - February: post-holiday lull (50%)
// March - October: normal trade (70%)
// November: holiday build-up (85%)
// December: holiday peak (100%)
// Saturday: 120% of weekday, capped at 100%
type RetailSeasonal struct{}

// NewRetailSeasonal creates a new RetailSeasonal profile.
func NewRetailSeasonal() Profile {
	return RetailSeasonal{}
}

func (RetailSeasonal) Name() string {
	return "retail-seasonal"
}

func (RetailSeasonal) Description() string {
	return "Holiday peak in November and December, January lull"
}

func (RetailSeasonal) Weight(day time.Time) float64 {
	var base float64

	switch day.Month() {
	case time.January, time.February:
		base = 0.50
	case time.November:
		base = 0.85
	case time.December:
		base = 1.0
	default:
		base = 0.70
	}

	if day.Weekday() == time.Saturday {
		base *= 1.20
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}

// Weekend concentrates sales on Saturdays and Sundays.
// Weekday: 40%
// Friday: 60%
// Weekend: 100%
type Weekend struct{}

// NewWeekend creates a new Weekend profile.
func NewWeekend() Profile {
	return Weekend{}
}

func (Weekend) Name() string {
	return "weekend"
}

func (Weekend) Description() string {
	return "Most sales on weekends"
}

func (Weekend) Weight(day time.Time) float64 {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return 1.0
	case time.Friday:
		return 0.60
	default:
		return 0.40
	}
}

// pickDay draws a day in [start, end] with probability proportional to
// the profile weight. Weights must not exceed 1.0.
func pickDay(f *Faker, p Profile, start, end time.Time) time.Time {
	last := end.AddDate(0, 0, 1).Add(-time.Second)
	for i := 0; i < 100; i++ {
		d := f.DateRange(start, last)
		if p == nil || f.Float64(0, 1) < p.Weight(d) {
			return d
		}
	}
	return f.DateRange(start, last)
}
