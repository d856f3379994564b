package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationValid(t *testing.T) {
	assert.True(t, Location{Lat: 26.9, Lon: 75.8}.Valid())
	assert.False(t, Location{Lat: 200, Lon: 75.8}.Valid())
	assert.False(t, Location{Lat: 26.9, Lon: -200}.Valid())
}

func TestPOIValid(t *testing.T) {
	valid := POI{DataSource: SourceOpenStreetMap, SourceID: "way:123", DurationMin: 60, Location: Location{Lat: 1, Lon: 1}}
	assert.True(t, valid.Valid())

	noSource := valid
	noSource.SourceID = ""
	assert.False(t, noSource.Valid())

	badDuration := valid
	badDuration.DurationMin = 0
	assert.False(t, badDuration.Valid())
}

func TestPOIKeyIsStable(t *testing.T) {
	a := POI{DataSource: SourceGooglePlaces, SourceID: "abc"}
	b := POI{DataSource: SourceGooglePlaces, SourceID: "abc"}
	c := POI{DataSource: SourceOpenStreetMap, SourceID: "abc"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestPaceRange(t *testing.T) {
	cases := []struct {
		pace     Pace
		min, max int
	}{
		{PaceRelaxed, 2, 3},
		{PaceModerate, 3, 4},
		{PaceFast, 4, 5},
	}
	for _, c := range cases {
		min, max := PaceRange(c.pace)
		assert.Equal(t, c.min, min)
		assert.Equal(t, c.max, max)
	}
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "day_1", DayKey(1))
	assert.Equal(t, "day_12", DayKey(12))
}

func TestAllActivitiesFlattensInBlockOrder(t *testing.T) {
	day := DayItinerary{
		Morning:   TimeBlock{Activities: []Activity{{Name: "m"}}},
		Afternoon: TimeBlock{Activities: []Activity{{Name: "a"}}},
		Evening:   TimeBlock{Activities: []Activity{{Name: "e"}}},
	}
	all := day.AllActivities()
	assert.Equal(t, []string{"m", "a", "e"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func TestRecomputeTotalTravelTime(t *testing.T) {
	it := Itinerary{Days: []DayItinerary{
		{Morning: TimeBlock{Activities: []Activity{{TravelTimeFromPrevious: 10}, {TravelTimeFromPrevious: 5}}}},
	}}
	it.RecomputeTotalTravelTime()
	assert.Equal(t, 15, it.TotalTravelTime)
}

func TestMissingSlotsPriorityOrder(t *testing.T) {
	p := Preferences{City: "Jaipur"}
	missing := p.MissingSlots()
	assert.Equal(t, []string{"duration_days", "travel_mode", "travel_dates", "interests", "pace"}, missing)
}

func TestMandatorySlotsPresent(t *testing.T) {
	days := 3
	assert.True(t, Preferences{City: "Jaipur", DurationDays: &days}.MandatorySlotsPresent())
	assert.False(t, Preferences{City: "Jaipur"}.MandatorySlotsPresent())
	assert.False(t, Preferences{DurationDays: &days}.MandatorySlotsPresent())
}

func TestSourceFromPOI(t *testing.T) {
	poi := POI{DataSource: SourceGooglePlaces, SourceID: "p1", Name: "Fort"}
	src := SourceFromPOI(poi)
	assert.Equal(t, SourceTypeGooglePlaces, src.Type)
	assert.Equal(t, "p1", src.SourceID)
	assert.Equal(t, "Fort", src.POI.Name)
}
