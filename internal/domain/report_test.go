package domain

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission() ReportSubmission {
	return ReportSubmission{
		Category: CategoryPoorLighting,
		Location: Coordinate{Lng: 73.4050, Lat: 18.7450},
		DeviceID: "dev_d1",
	}
}

func TestReportSubmission_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReportSubmission)
		ok     bool
	}{
		{"valid", func(*ReportSubmission) {}, true},
		{"unknown category", func(s *ReportSubmission) { s.Category = "Noise" }, false},
		{"blank device", func(s *ReportSubmission) { s.DeviceID = "  " }, false},
		{"longitude out of range", func(s *ReportSubmission) { s.Location.Lng = 181 }, false},
		{"latitude out of range", func(s *ReportSubmission) { s.Location.Lat = -91 }, false},
		{"NaN", func(s *ReportSubmission) { s.Location.Lat = math.NaN() }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidReport)
		})
	}
}

func TestNewReport(t *testing.T) {
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	s := validSubmission()
	s.DeviceID = " dev_d1 "
	s.Description = strings.Repeat("x", 600)

	r := NewReport(s, now)

	assert.True(t, strings.HasPrefix(r.ID, "rep_"))
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, "dev_d1", r.DeviceID)
	assert.Len(t, r.Description, maxDescriptionLen)
	assert.NotEqual(t, r.ID, NewReport(s, now).ID)
}

func TestParseReportMessage(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"category":"Physical Threat","coordinates":{"lng":73.4,"lat":18.7},"device_id":"dev_x","has_image":true}`)}
		sub, err := ParseReportMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, CategoryPhysicalThreat, sub.Category)
		assert.Equal(t, "dev_x", sub.DeviceID)
		assert.True(t, sub.HasImage)
	})

	t.Run("key fills missing device", func(t *testing.T) {
		raw := RawEvent{Key: []byte("dev_key"), Value: []byte(`{"category":"Poor Lighting","coordinates":{"lng":1,"lat":1}}`)}
		sub, err := ParseReportMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, "dev_key", sub.DeviceID)
	})

	t.Run("payload device wins over key", func(t *testing.T) {
		raw := RawEvent{Key: []byte("dev_key"), Value: []byte(`{"category":"Poor Lighting","coordinates":{"lng":1,"lat":1},"device_id":"dev_body"}`)}
		sub, err := ParseReportMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, "dev_body", sub.DeviceID)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := ParseReportMessage(RawEvent{Value: []byte("{")})
		require.Error(t, err)
	})

	t.Run("invalid category", func(t *testing.T) {
		_, err := ParseReportMessage(RawEvent{Value: []byte(`{"category":"Noise","coordinates":{"lng":1,"lat":1},"device_id":"d"}`)})
		require.ErrorIs(t, err, ErrInvalidReport)
	})
}

func TestCategory_Effects(t *testing.T) {
	assert.True(t, CategoryPoorLighting.AffectsLighting())
	assert.True(t, CategoryAbandonedDarkArea.AffectsLighting())
	assert.False(t, CategoryVerbalHarassment.AffectsLighting())
	assert.True(t, CategorySuspiciousLoitering.AffectsCrowd())
	assert.True(t, CategoryUnsafeCrowdBehavior.AffectsCrowd())
	assert.False(t, CategoryPhysicalThreat.AffectsCrowd())
}

func TestHaversine(t *testing.T) {
	a := Coordinate{Lng: 73.4050, Lat: 18.7450}
	assert.Zero(t, HaversineKm(a, a))

	// One thousandth of a degree of latitude is about 111 m.
	b := Coordinate{Lng: 73.4050, Lat: 18.7460}
	assert.InDelta(t, 111.2, HaversineMeters(a, b), 0.5)
	assert.InDelta(t, HaversineKm(a, b), HaversineKm(b, a), 1e-12)
}

func TestRiskCluster_DeviceCount(t *testing.T) {
	c := RiskCluster{Reports: []Report{{DeviceID: "a"}, {DeviceID: "b"}, {DeviceID: "a"}}}
	assert.Equal(t, 2, c.DeviceCount())
}

func TestSelection_Selected(t *testing.T) {
	sel := Selection{Scored: []CandidateRoute{{ID: "a"}, {ID: "b"}}, SelectedID: "b"}
	got, ok := sel.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)

	_, ok = Selection{Scored: sel.Scored}.Selected()
	assert.False(t, ok)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("driving")
	require.NoError(t, err)
	assert.Equal(t, ProfileDriving, p)

	_, err = ParseProfile("cycling")
	require.ErrorIs(t, err, ErrInvalidProfile)
}
