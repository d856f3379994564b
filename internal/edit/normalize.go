// Package edit implements the targeted edit engine: voice normalization,
// LLM-with-regex-fallback parsing, affected-section mapping, and
// deep-copy-then-mutate-only-affected-sections application.
package edit

import (
	"regexp"
	"strconv"
	"strings"
)

// wordNumbers converts spoken number words to digits, grounded on the
// original implementation's day_words table ("one".."ten" -> 1-10).
var wordNumbers = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"to": "2", "too": "2", "for": "4", "ate": "8",
}

// sttFixTable are known speech-to-text mis-transcriptions, grounded on
// edit_handler.py's swap/day word confusions.
var sttFixTable = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)\bplay\b`), "swap"},
	{regexp.MustCompile(`(?i)\bplace\b`), "swap"},
	{regexp.MustCompile(`(?i)\bday to\b`), "day 2"},
	{regexp.MustCompile(`(?i)\bday too\b`), "day 2"},
	{regexp.MustCompile(`(?i)\bday for\b`), "day 4"},
}

var fillerWords = []string{"um", "uh", "like", "you know", "basically", "actually"}

// cityMispronunciations is a small curated table of common voice
// mis-hearings for city names, complementing the geocoder's own table.
var cityMispronunciations = map[string]string{
	"jaypur": "jaipur",
	"jaipoor": "jaipur",
	"banglore": "bangalore",
}

// swapMissingDayRe catches a swap operand transcribed without its "day"
// keyword — e.g. "play one with day to" STT-fixes and number-converts to
// "swap 1 with day 2", dropping "day" off the first operand entirely since
// it was never in the original words. Re-inserted after number conversion
// so the swap/move regex fallback still matches both operands.
var swapMissingDayRe = regexp.MustCompile(`(?i)\bswap\s+(\d+)\s+(with|and)\b`)

// NormalizeVoiceInput applies the STT fix table, filler removal, word
// numbers, missing-"day"-keyword repair, and city mispronunciation fixes,
// in that order, as a pure table-driven function so new dialects of error
// extend the table, not the code.
func NormalizeVoiceInput(input string) string {
	text := input
	for _, fix := range sttFixTable {
		text = fix.pattern.ReplaceAllString(text, fix.repl)
	}
	text = removeFillers(text)
	text = replaceNumberWords(text)
	text = swapMissingDayRe.ReplaceAllString(text, "swap day $1 $2")
	text = fixCityNames(text)
	return strings.TrimSpace(text)
}

func removeFillers(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(strings.Trim(w, ".,!?"))
		filler := false
		for _, f := range fillerWords {
			if lower == f {
				filler = true
				break
			}
		}
		if !filler {
			out = append(out, w)
		} else if len(out) > 0 {
			// A dropped filler takes the comma that set it off with it.
			out[len(out)-1] = strings.TrimSuffix(out[len(out)-1], ",")
		}
	}
	return strings.Join(out, " ")
}

var numberWordRe = regexp.MustCompile(`(?i)\b(one|two|three|four|five|six|seven|eight|nine|ten)\b`)

func replaceNumberWords(text string) string {
	return numberWordRe.ReplaceAllStringFunc(text, func(match string) string {
		if digit, ok := wordNumbers[strings.ToLower(match)]; ok {
			return digit
		}
		return match
	})
}

func fixCityNames(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		lower := strings.ToLower(strings.Trim(w, ".,!?"))
		if fixed, ok := cityMispronunciations[lower]; ok {
			words[i] = fixed
		}
	}
	return strings.Join(words, " ")
}

// ParseDayNumber extracts a 1-indexed day number from a normalized word
// like "1" or "day_1".
func ParseDayNumber(s string) (int, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "day_")
	s = strings.TrimPrefix(s, "day")
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
