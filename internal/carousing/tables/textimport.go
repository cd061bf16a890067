package tables

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bloops-games/carousing/internal/carousing/model"
)

// The parsers below turn pasted text into rows, one row per line. Cells are separated by "|"
// or tabs; a line that does not fit is counted as skipped instead of failing the whole paste.

var (
	cellSep  = regexp.MustCompile(`\s*[|\t]\s*`)
	rollHead = regexp.MustCompile(`^(\d+(?:\s*[-–]\s*\d+|\s*\+)?)[.):]?\s+(.+)$`)
	tierHead = regexp.MustCompile(`^(\d+)\s*(?:gp|gold)?\s+([+-]\d+)\s+(.+)$`)
	number   = regexp.MustCompile(`[+-]?\d+`)
)

func lines(text string) []string {
	var list []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		list = append(list, l)
	}
	return list
}

func cells(line string) []string {
	return cellSep.Split(strings.Trim(line, "| \t"), -1)
}

func atoi(s string) (int, bool) {
	m := number.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

// ParseTiers reads "cost | bonus | description" or "100gp +1 description" lines.
func ParseTiers(text string) ([]model.Tier, int) {
	var (
		tiers   []model.Tier
		skipped int
	)

	for _, l := range lines(text) {
		if c := cells(l); len(c) >= 3 {
			cost, ok1 := atoi(c[0])
			bonus, ok2 := atoi(c[1])
			if ok1 && ok2 && cost >= 0 {
				tiers = append(tiers, model.Tier{Cost: cost, Bonus: bonus, Description: strings.Join(c[2:], " ")})
				continue
			}
		}

		if m := tierHead.FindStringSubmatch(l); m != nil {
			cost, _ := strconv.Atoi(m[1])
			bonus, _ := strconv.Atoi(m[2])
			tiers = append(tiers, model.Tier{Cost: cost, Bonus: bonus, Description: m[3]})
			continue
		}

		skipped++
	}

	return tiers, skipped
}

// ParseOutcomes reads "roll | description | benefit [| gold | xp]" or "roll. description" lines.
func ParseOutcomes(text string) ([]model.Outcome, int) {
	var (
		outcomes []model.Outcome
		skipped  int
	)

	for _, l := range lines(text) {
		c := cells(l)
		if len(c) >= 2 && validRoll(c[0]) {
			o := model.Outcome{Roll: normRoll(c[0]), Description: c[1]}
			if len(c) > 2 {
				o.Benefit = c[2]
			}
			if len(c) > 3 {
				o.Gold, _ = atoi(c[3])
			}
			if len(c) > 4 {
				o.XP, _ = atoi(c[4])
			}
			outcomes = append(outcomes, o)
			continue
		}

		if m := rollHead.FindStringSubmatch(l); m != nil && validRoll(m[1]) {
			outcomes = append(outcomes, model.Outcome{Roll: normRoll(m[1]), Description: m[2]})
			continue
		}

		skipped++
	}

	return outcomes, skipped
}

// ParseRecipes reads "roll | mishaps | benefits | modifier | xp" lines. Missing trailing
// numbers default to zero.
func ParseRecipes(text string) ([]model.Recipe, int) {
	var (
		recipes []model.Recipe
		skipped int
	)

	for _, l := range lines(text) {
		c := cells(l)
		if len(c) < 3 || !validRoll(c[0]) {
			skipped++
			continue
		}

		var nums [4]int
		ok := true
		for i := 1; i < len(c) && i <= len(nums); i++ {
			n, good := atoi(c[i])
			if !good {
				ok = false
				break
			}
			nums[i-1] = n
		}
		if !ok || nums[0] < 0 || nums[1] < 0 {
			skipped++
			continue
		}

		recipes = append(recipes, model.Recipe{
			Roll:     normRoll(c[0]),
			Mishaps:  nums[0],
			Benefits: nums[1],
			Modifier: nums[2],
			XP:       nums[3],
		})
	}

	return recipes, skipped
}

// ParseEntries reads benefit or mishap lines. Lines without a roll are numbered after the
// previous row.
func ParseEntries(text string) ([]model.Entry, int) {
	var (
		entries []model.Entry
		next    = 1
	)

	for _, l := range lines(text) {
		c := cells(l)
		if len(c) >= 2 && validRoll(c[0]) {
			entries = append(entries, model.Entry{Roll: normRoll(c[0]), Description: strings.Join(c[1:], " ")})
			next = nextRoll(c[0])
			continue
		}

		if m := rollHead.FindStringSubmatch(l); m != nil && validRoll(m[1]) {
			entries = append(entries, model.Entry{Roll: normRoll(m[1]), Description: m[2]})
			next = nextRoll(m[1])
			continue
		}

		entries = append(entries, model.Entry{Roll: strconv.Itoa(next), Description: l})
		next++
	}

	return entries, 0
}

func validRoll(s string) bool {
	_, err := model.ParseRange(s)
	return err == nil
}

func normRoll(s string) string {
	r, err := model.ParseRange(s)
	if err != nil {
		return s
	}
	switch {
	case r.Open:
		return strconv.Itoa(r.Min) + "+"
	case r.Min != r.Max:
		return strconv.Itoa(r.Min) + "-" + strconv.Itoa(r.Max)
	}
	return strconv.Itoa(r.Min)
}

func nextRoll(s string) int {
	r, err := model.ParseRange(s)
	if err != nil {
		return 1
	}
	return r.Max + 1
}
