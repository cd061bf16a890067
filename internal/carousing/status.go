package carousing

import (
	"context"
	"fmt"

	"github.com/bloops-games/carousing/internal/carousing/model"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/logging"
)

// SplitCost is each participant's share of cost, rounded up so the group never pays less than
// the tier costs.
func SplitCost(cost, participants int) int {
	if participants < 1 {
		participants = 1
	}
	if cost <= 0 {
		return 0
	}
	share := cost / participants
	if cost%participants != 0 {
		share++
	}
	return share
}

// CanAfford reports whether the purse covers a share given in gold. Shares or purses beyond
// MaxGold are never affordable.
func CanAfford(coins actorModel.Coins, share int) bool {
	if share <= 0 {
		return true
	}
	if share > actorModel.MaxGold || !coins.Valid() {
		return false
	}
	return coins.Copper() >= share*actorModel.CopperPerGold
}

// RenownBonus maps renown to the bonus added on top of the tier bonus: one point per five
// renown, capped at four.
func RenownBonus(renown int) int {
	bonus := renown / 5
	switch {
	case bonus < 0:
		return 0
	case bonus > 4:
		return 4
	}
	return bonus
}

type TableSummary struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Mode model.Mode `json:"mode"`
	Die  string     `json:"die"`
}

type PlayerStatus struct {
	User      userModel.User      `json:"user"`
	ActorID   string              `json:"actorId,omitempty"`
	Actor     *actorModel.Actor   `json:"actor,omitempty"`
	HasDrop   bool                `json:"hasDrop"`
	Confirmed bool                `json:"confirmed"`
	CanAfford bool                `json:"canAfford"`
	Modifier  model.Modifier      `json:"modifier"`
	Benefits  []model.ResultEntry `json:"benefits"`
	Mishaps   []model.ResultEntry `json:"mishaps"`
	Roll      *model.RollRecord   `json:"roll,omitempty"`
}

// Status is the derived view of the session over the players online right now. Stored entries
// of offline players are ignored.
type Status struct {
	Mode         model.Mode     `json:"mode"`
	Session      model.Session  `json:"session"`
	Table        *TableSummary  `json:"table,omitempty"`
	Tier         *model.Tier    `json:"tier,omitempty"`
	Players      []PlayerStatus `json:"players"`
	Participants int            `json:"participants"`
	SplitCost    int            `json:"splitCost"`
	AllConfirmed bool           `json:"allConfirmed"`
	AllCanAfford bool           `json:"allCanAfford"`
	CanRoll      bool           `json:"canRoll"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	st, _, err := e.status(ctx)
	return st, err
}

func (e *Engine) status(ctx context.Context) (Status, *activeTable, error) {
	logger := logging.FromContext(ctx).Named("carousing.Status")

	var st Status

	mode, err := e.Mode(ctx)
	if err != nil {
		return st, nil, err
	}
	st.Mode = mode

	s, err := e.Session(ctx)
	if err != nil {
		return st, nil, err
	}
	st.Session = s

	var active *activeTable
	if s.SelectedTableID != "" {
		t, err := e.table(ctx, mode, s.SelectedTableID)
		if err != nil {
			if !IsValidation(err) {
				return st, nil, err
			}
			logger.Warnf("selected table unavailable: %v", err)
		} else {
			active = &t
			st.Table = &TableSummary{ID: t.id, Name: t.name, Mode: t.mode, Die: t.die}
		}
	}

	if active != nil && s.SelectedTier != nil {
		if tier, ok := model.TierAt(active.tiers, *s.SelectedTier); ok {
			st.Tier = &tier
		} else {
			logger.Warnf("selected tier %d is out of range", *s.SelectedTier)
		}
	}

	online, err := e.identity.Online(ctx)
	if err != nil {
		return st, nil, fmt.Errorf("online users: %w", err)
	}

	for _, u := range online {
		if u.GM {
			continue
		}

		p := PlayerStatus{
			User:      u,
			ActorID:   s.Drops[u.ID],
			HasDrop:   s.HasDrop(u.ID),
			Confirmed: s.Confirmed(u.ID),
			Modifier:  s.Modifiers[u.ID],
			Benefits:  s.ResultsOf(u.ID, model.KindBenefit),
			Mishaps:   s.ResultsOf(u.ID, model.KindMishap),
		}
		if rec, ok := s.Rolls[u.ID]; ok {
			p.Roll = &rec
		}

		if p.HasDrop {
			st.Participants++
			a, err := e.actors.Actor(ctx, p.ActorID)
			if err != nil {
				logger.Warnf("drop %s of %s unavailable: %v", p.ActorID, u.ID, err)
			} else {
				p.Actor = &a
			}
		}

		st.Players = append(st.Players, p)
	}

	if st.Tier != nil {
		st.SplitCost = SplitCost(st.Tier.Cost, st.Participants)
	}

	st.AllConfirmed, st.AllCanAfford = true, true
	for i := range st.Players {
		p := &st.Players[i]
		if !p.HasDrop {
			continue
		}

		p.CanAfford = p.Actor != nil && CanAfford(p.Actor.Coins, st.SplitCost)
		st.AllConfirmed = st.AllConfirmed && p.Confirmed
		st.AllCanAfford = st.AllCanAfford && p.CanAfford
	}

	st.CanRoll = st.AllConfirmed && st.AllCanAfford && st.Tier != nil && st.Participants > 0

	return st, active, nil
}

// VisibleTo is the status as viewer may see it: players only see their own modifier.
func (st Status) VisibleTo(viewer userModel.User) Status {
	if viewer.GM {
		return st
	}

	st.Session = st.Session.VisibleTo(viewer.ID)

	players := make([]PlayerStatus, len(st.Players))
	for i, p := range st.Players {
		if p.User.ID != viewer.ID {
			p.Modifier = model.Modifier{}
		}
		players[i] = p
	}
	st.Players = players

	return st
}
