package edit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVoiceInputFixesSTTConfusions(t *testing.T) {
	assert.Equal(t, "swap day 1 and day 2", NormalizeVoiceInput("play day 1 and day too"))
	assert.Equal(t, "swap day 1 and day 4", NormalizeVoiceInput("place day 1 and day for"))
}

func TestNormalizeVoiceInputRemovesFillers(t *testing.T) {
	assert.Equal(t, "swap day 1 and day 2", NormalizeVoiceInput("um swap day 1 and, like, day 2"))
}

func TestNormalizeVoiceInputReplacesNumberWords(t *testing.T) {
	assert.Equal(t, "add activity to day 3", NormalizeVoiceInput("add activity to day three"))
}

func TestNormalizeVoiceInputRepairsSwapOperandMissingDayKeyword(t *testing.T) {
	assert.Equal(t, "swap day 1 with day 2", NormalizeVoiceInput("play one with day to"))
}

func TestNormalizeVoiceInputFixesCityMispronunciations(t *testing.T) {
	assert.Equal(t, "plan a trip to jaipur", NormalizeVoiceInput("plan a trip to jaypur"))
	assert.Equal(t, "plan a trip to bangalore", NormalizeVoiceInput("plan a trip to banglore"))
}

func TestParseDayNumber(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantOK  bool
	}{
		{"1", 1, true},
		{"day_2", 2, true},
		{"day3", 3, true},
		{"not a number", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseDayNumber(c.in)
		assert.Equal(t, c.wantOK, ok, c.in)
		if ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}
