package segment

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func msgAt(lat, lon, course, speed float64, t time.Time) Message {
	return Message{Lat: lat, Lon: lon, Course: course, Speed: speed, Time: t}
}

func TestDiscrepancy_StationaryVesselIsZero(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m1 := msgAt(10, 20, math.NaN(), 0, base)
	m2 := msgAt(10, 20, math.NaN(), 0, base.Add(time.Hour))

	d := Discrepancy(m1, m2, 1, 4.0)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestDiscrepancy_ConsistentStraightLineIsSmall(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m1 := msgAt(0, 0, 90, 10, base)
	// 10 knots due east for 1 hour covers 10nm ~ 1/6 degree of longitude at the equator.
	m2 := msgAt(0, 10.0/60.0, 90, 10, base.Add(time.Hour))

	d := Discrepancy(m1, m2, 1, 4.0)
	assert.Less(t, d, 1.0)
}

func TestDiscrepancy_ImpossibleJumpIsLarge(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m1 := msgAt(0, 0, 0, 0, base)
	m2 := msgAt(10, 10, 0, 0, base.Add(time.Minute))

	d := Discrepancy(m1, m2, 1.0/60, 4.0)
	assert.Greater(t, d, 100.0)
}

func TestWrapDegrees(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"already in range", 90, 90},
		{"upper bound", 180, 180},
		{"wraps down", 190, -170},
		{"wraps up", -190, 170},
		{"full turn", 360, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, wrapDegrees(tt.in), 1e-9)
		})
	}
}

func TestDiscrepancy_NeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat1 := rapid.Float64Range(-80, 80).Draw(t, "lat1")
		lon1 := rapid.Float64Range(-180, 180).Draw(t, "lon1")
		lat2 := rapid.Float64Range(-80, 80).Draw(t, "lat2")
		lon2 := rapid.Float64Range(-180, 180).Draw(t, "lon2")
		course1 := rapid.Float64Range(0, 360).Draw(t, "course1")
		course2 := rapid.Float64Range(0, 360).Draw(t, "course2")
		speed1 := rapid.Float64Range(0, 30).Draw(t, "speed1")
		speed2 := rapid.Float64Range(0, 30).Draw(t, "speed2")
		hours := rapid.Float64Range(0.01, 10).Draw(t, "hours")

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		m1 := msgAt(lat1, lon1, course1, speed1, base)
		m2 := msgAt(lat2, lon2, course2, speed2, base.Add(time.Duration(hours*float64(time.Hour))))

		d := Discrepancy(m1, m2, hours, 4.0)
		assert.False(t, math.IsNaN(d), "discrepancy should never be NaN")
		assert.GreaterOrEqual(t, d, 0.0)
	})
}
