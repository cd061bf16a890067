package model

import (
	"fmt"
	"time"
)

type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseRolling    Phase = "rolling"
	PhaseResolved   Phase = "resolved"
)

type Kind string

const (
	KindBenefit Kind = "benefit"
	KindMishap  Kind = "mishap"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBenefit, KindMishap:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown result kind %q", s)
}

type ModifierField string

const (
	FieldOutcome  ModifierField = "outcome"
	FieldBenefits ModifierField = "benefits"
	FieldMishaps  ModifierField = "mishaps"
)

// Modifier is the GM's free text appended to a player's results at resolution time.
type Modifier struct {
	Outcome  string `json:"outcome"`
	Benefits string `json:"benefits"`
	Mishaps  string `json:"mishaps"`
}

func (m Modifier) Empty() bool {
	return m.Outcome == "" && m.Benefits == "" && m.Mishaps == ""
}

func (m *Modifier) Set(field ModifierField, text string) error {
	switch field {
	case FieldOutcome:
		m.Outcome = text
	case FieldBenefits:
		m.Benefits = text
	case FieldMishaps:
		m.Mishaps = text
	default:
		return fmt.Errorf("unknown modifier field %q", field)
	}
	return nil
}

const (
	SourceRoll     = "roll"
	SourceManual   = "manual"
	SourceModifier = "modifier"
)

type ResultEntry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RollRecord keeps how a player's outcome was reached, for display.
type RollRecord struct {
	ActorID     string    `json:"actorId"`
	Die         string    `json:"die"`
	Natural     int       `json:"natural"`
	TierBonus   int       `json:"tierBonus"`
	RenownBonus int       `json:"renownBonus"`
	Total       int       `json:"total"`
	Row         string    `json:"row"`
	Cost        int       `json:"cost"`
	Gold        int       `json:"gold"`
	XP          int       `json:"xp"`
	Timestamp   time.Time `json:"timestamp"`
}

type Session struct {
	SelectedTableID string `json:"selectedTableId,omitempty"`
	// nil until the GM picks a tier
	SelectedTier  *int                     `json:"selectedTier"`
	Phase         Phase                    `json:"phase"`
	Confirmations map[string]bool          `json:"confirmations"`
	Drops         map[string]string        `json:"drops"`
	Modifiers     map[string]Modifier      `json:"modifiers"`
	Results       map[string][]ResultEntry `json:"results"`
	Rolls         map[string]RollRecord    `json:"rolls,omitempty"`
}

func NewSession() Session {
	s := Session{}
	s.Normalize()
	return s
}

// Normalize fills nil maps and an empty phase so decoded documents are safe to mutate.
func (s *Session) Normalize() {
	if s.Phase == "" {
		s.Phase = PhaseCollecting
	}
	if s.Confirmations == nil {
		s.Confirmations = map[string]bool{}
	}
	if s.Drops == nil {
		s.Drops = map[string]string{}
	}
	if s.Modifiers == nil {
		s.Modifiers = map[string]Modifier{}
	}
	if s.Results == nil {
		s.Results = map[string][]ResultEntry{}
	}
	if s.Rolls == nil {
		s.Rolls = map[string]RollRecord{}
	}
}

// VisibleTo drops the GM's modifiers of every player but viewerID.
func (s Session) VisibleTo(viewerID string) Session {
	mods := make(map[string]Modifier, 1)
	if m, ok := s.Modifiers[viewerID]; ok {
		mods[viewerID] = m
	}
	s.Modifiers = mods
	return s
}

func (s Session) HasDrop(playerID string) bool {
	return s.Drops[playerID] != ""
}

// Confirmed is false for a player without a drop whatever the stored flag says.
func (s Session) Confirmed(playerID string) bool {
	return s.HasDrop(playerID) && s.Confirmations[playerID]
}

func (s Session) ResultsOf(playerID string, kind Kind) []ResultEntry {
	var list []ResultEntry
	for _, r := range s.Results[playerID] {
		if r.Kind == kind {
			list = append(list, r)
		}
	}
	return list
}

// RemoveResult deletes the index-th entry of the given kind for playerID.
func (s *Session) RemoveResult(playerID string, kind Kind, index int) bool {
	if index < 0 {
		return false
	}

	n := 0
	entries := s.Results[playerID]
	for i, r := range entries {
		if r.Kind != kind {
			continue
		}
		if n == index {
			s.Results[playerID] = append(entries[:i:i], entries[i+1:]...)
			if len(s.Results[playerID]) == 0 {
				delete(s.Results, playerID)
			}
			return true
		}
		n++
	}

	return false
}
