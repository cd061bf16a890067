package model

import (
	"fmt"

	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	"github.com/bloops-games/carousing/internal/dice"
)

type Mode string

const (
	ModeCustom   Mode = "custom"
	ModeExpanded Mode = "expanded"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCustom, ModeExpanded:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown carousing mode %q", s)
}

const (
	DefaultDie = "1d8"
	// MaxDraws bounds how many benefits or mishaps one recipe row may draw.
	MaxDraws = 20
)

type Tier struct {
	// Cost in gold pieces, split between participants
	Cost        int    `json:"cost"`
	Bonus       int    `json:"bonus"`
	Description string `json:"description"`
}

type Outcome struct {
	Roll        string `json:"roll"`
	Description string `json:"description"`
	Benefit     string `json:"benefit"`
	Gold        int    `json:"gold,omitempty"`
	XP          int    `json:"xp,omitempty"`
}

// Recipe is an expanded-table outcome row: how many benefits and mishaps to draw and which
// flat gold and experience changes apply.
type Recipe struct {
	Roll     string `json:"roll"`
	Mishaps  int    `json:"mishaps"`
	Benefits int    `json:"benefits"`
	Modifier int    `json:"modifier"`
	XP       int    `json:"xp"`
}

type Entry struct {
	Roll        string `json:"roll"`
	Description string `json:"description"`
}

type Table struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Die      string    `json:"die,omitempty"`
	Tiers    []Tier    `json:"tiers"`
	Outcomes []Outcome `json:"outcomes"`
	BuiltIn  bool      `json:"builtIn,omitempty"`
}

type ExpandedTable struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Die        string   `json:"die,omitempty"`
	BenefitDie string   `json:"benefitDie,omitempty"`
	MishapDie  string   `json:"mishapDie,omitempty"`
	Tiers      []Tier   `json:"tiers"`
	Outcomes   []Recipe `json:"outcomes"`
	Benefits   []Entry  `json:"benefits"`
	Mishaps    []Entry  `json:"mishaps"`
	BuiltIn    bool     `json:"builtIn,omitempty"`
}

// Collection is the persisted set of GM-authored tables. Built-in tables are not stored.
type Collection struct {
	Custom   []Table         `json:"custom"`
	Expanded []ExpandedTable `json:"expanded"`
}

func TierAt(tiers []Tier, index int) (Tier, bool) {
	if index < 0 || index >= len(tiers) {
		return Tier{}, false
	}
	return tiers[index], true
}

func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is empty")
	}
	if t.Tiers == nil || t.Outcomes == nil {
		return fmt.Errorf("table %q: tiers and outcomes are required", t.Name)
	}
	if err := validateDice(t.Die); err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}
	if err := validateTiers(t.Tiers); err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}
	for i, o := range t.Outcomes {
		if _, err := ParseRange(o.Roll); err != nil {
			return fmt.Errorf("table %q outcome %d: %w", t.Name, i, err)
		}
		if !withinGold(o.Gold) || !withinGold(o.XP) {
			return fmt.Errorf("table %q outcome %d: gold or xp out of range", t.Name, i)
		}
	}
	return nil
}

func (t ExpandedTable) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is empty")
	}
	if t.Tiers == nil || t.Outcomes == nil || t.Benefits == nil || t.Mishaps == nil {
		return fmt.Errorf("table %q: tiers, outcomes, benefits and mishaps are required", t.Name)
	}
	if err := validateDice(t.Die, t.BenefitDie, t.MishapDie); err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}
	if err := validateTiers(t.Tiers); err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}
	for i, o := range t.Outcomes {
		if _, err := ParseRange(o.Roll); err != nil {
			return fmt.Errorf("table %q outcome %d: %w", t.Name, i, err)
		}
		if o.Benefits < 0 || o.Mishaps < 0 || o.Benefits > MaxDraws || o.Mishaps > MaxDraws {
			return fmt.Errorf("table %q outcome %d: draw count out of range", t.Name, i)
		}
		if !withinGold(o.Modifier) || !withinGold(o.XP) {
			return fmt.Errorf("table %q outcome %d: modifier or xp out of range", t.Name, i)
		}
	}
	return nil
}

func validateTiers(tiers []Tier) error {
	for i, tier := range tiers {
		if tier.Cost < 0 || tier.Cost > actorModel.MaxGold {
			return fmt.Errorf("tier %d: cost out of range", i)
		}
		if tier.Bonus < -dice.MaxSides || tier.Bonus > dice.MaxSides {
			return fmt.Errorf("tier %d: bonus out of range", i)
		}
	}
	return nil
}

func validateDice(exprs ...string) error {
	for _, e := range exprs {
		if e == "" {
			continue
		}
		if _, err := dice.Parse(e); err != nil {
			return err
		}
	}
	return nil
}

func withinGold(n int) bool {
	return n >= -actorModel.MaxGold && n <= actorModel.MaxGold
}
