package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxRoll bounds the numbers a roll cell may name.
const MaxRoll = 1000

var rangeRe = regexp.MustCompile(`^(-?\d+)(?:\s*[-–]\s*(-?\d+)|\s*(\+))?$`)

// Range is a roll cell: "5", "2-4" or the open-ended "8+".
type Range struct {
	Min  int
	Max  int
	Open bool
}

func ParseRange(s string) (Range, error) {
	var r Range

	m := rangeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return r, fmt.Errorf("malformed roll %q", s)
	}

	lo, err := strconv.Atoi(m[1])
	if err != nil {
		return r, fmt.Errorf("malformed roll %q", s)
	}
	if lo < -MaxRoll || lo > MaxRoll {
		return r, fmt.Errorf("roll %q out of range", s)
	}
	r.Min, r.Max = lo, lo

	switch {
	case m[3] == "+":
		r.Open = true
	case m[2] != "":
		hi, err := strconv.Atoi(m[2])
		if err != nil || hi < lo || hi > MaxRoll {
			return r, fmt.Errorf("malformed roll %q", s)
		}
		r.Max = hi
	}

	return r, nil
}

func (r Range) Contains(n int) bool {
	if r.Open {
		return n >= r.Min
	}
	return n >= r.Min && n <= r.Max
}

// MatchRoll finds the row whose roll range contains total. Totals below every row clamp to
// the lowest row; a total falling into a gap matches nothing.
func MatchRoll[T any](rows []T, rollOf func(T) string, total int) (T, bool) {
	var (
		zero   T
		lowest = -1
		lowMin int
	)

	for i, row := range rows {
		r, err := ParseRange(rollOf(row))
		if err != nil {
			continue
		}
		if r.Contains(total) {
			return row, true
		}
		if lowest < 0 || r.Min < lowMin {
			lowest, lowMin = i, r.Min
		}
	}

	if lowest >= 0 && total < lowMin {
		return rows[lowest], true
	}

	return zero, false
}

// HighestRoll is the largest roll value any row names, used to size lookup dice.
func HighestRoll[T any](rows []T, rollOf func(T) string) int {
	highest := 0
	for _, row := range rows {
		r, err := ParseRange(rollOf(row))
		if err != nil {
			continue
		}
		if r.Max > highest {
			highest = r.Max
		}
	}
	return highest
}

func OutcomeRoll(o Outcome) string { return o.Roll }
func RecipeRoll(r Recipe) string   { return r.Roll }
func EntryRoll(e Entry) string     { return e.Roll }
