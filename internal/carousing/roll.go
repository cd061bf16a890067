package carousing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloops-games/carousing/internal/carousing/model"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	"github.com/bloops-games/carousing/internal/dice"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/notify"
)

type Skip struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type Report struct {
	Resolved []string `json:"resolved"`
	Skipped  []Skip   `json:"skipped"`
}

// ExecuteRolls resolves every participant against the active table. The session is claimed by
// moving it to the rolling phase first, so a second roll is rejected until Reset. A participant
// that fails to resolve is skipped without touching the others.
func (e *Engine) ExecuteRolls(ctx context.Context, callerID string) (Report, error) {
	const op = "executeRolls"

	logger := logging.FromContext(ctx).Named("carousing.ExecuteRolls")

	var report Report

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return report, e.reject(ctx, op, callerID, err)
	}

	st, active, err := e.status(ctx)
	if err != nil {
		return report, e.reject(ctx, op, callerID, err)
	}
	if st.Session.Phase != model.PhaseCollecting {
		return report, e.reject(ctx, op, callerID, ErrAlreadyResolved)
	}
	if !st.CanRoll || active == nil {
		return report, e.reject(ctx, op, callerID, ErrNotReady)
	}

	claimed, err := e.mutate(ctx, op, func(s *model.Session) error {
		if s.Phase != model.PhaseCollecting {
			return ErrAlreadyResolved
		}
		if s.SelectedTableID != active.id || !sameTier(s.SelectedTier, st.Session.SelectedTier) {
			return ErrStale
		}
		s.Phase = model.PhaseRolling
		return nil
	})
	if err != nil {
		return report, e.reject(ctx, op, callerID, err)
	}

	participants := 0
	for _, p := range st.Players {
		if !p.HasDrop {
			continue
		}
		participants++

		if claimed.Drops[p.User.ID] != p.ActorID || !claimed.Confirmed(p.User.ID) {
			report.skip(p.User.ID, ErrStale)
			continue
		}

		if err := e.resolve(ctx, active, *st.Tier, st.SplitCost, p, claimed.Modifiers[p.User.ID]); err != nil {
			logger.Warnf("skipping %s: %v", p.User.ID, err)
			report.skip(p.User.ID, err)
			e.metrics.Skipped.WithLabelValues(skipReason(err)).Inc()
			e.toast(ctx, "", notify.LevelWarning, "carousing.skipped", map[string]interface{}{
				"Player": p.User.Name,
				"Reason": err.Error(),
			})
			continue
		}

		report.Resolved = append(report.Resolved, p.User.ID)
		e.metrics.Rolls.WithLabelValues(string(active.mode)).Inc()
	}

	if _, err := e.mutate(ctx, op, func(s *model.Session) error {
		s.Phase = model.PhaseResolved
		return nil
	}); err != nil {
		return report, e.reject(ctx, op, callerID, fmt.Errorf("finish rolling: %w", err))
	}

	e.toast(ctx, "", notify.LevelInfo, "carousing.resolved", map[string]interface{}{
		"Count": len(report.Resolved),
		"Total": participants,
	})

	return report, nil
}

func (r *Report) skip(playerID string, err error) {
	r.Skipped = append(r.Skipped, Skip{PlayerID: playerID, Reason: err.Error()})
}

func skipReason(err error) string {
	if r := reason(err); r != "" {
		return r
	}
	return "error"
}

func sameTier(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// outcome is everything a roll produced before it touches the actor or the session.
type outcome struct {
	record  model.RollRecord
	entries []model.ResultEntry
}

// resolve rolls first and only then charges the actor, so a roll that cannot be matched
// leaves the participant untouched. The share is refunded when the results cannot be stored.
func (e *Engine) resolve(ctx context.Context, t *activeTable, tier model.Tier, share int, p PlayerStatus, mod model.Modifier) error {
	logger := logging.FromContext(ctx).Named("carousing.resolve")

	a, err := e.actors.Actor(ctx, p.ActorID)
	if err != nil {
		if errors.Is(err, actorDb.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownActor, p.ActorID)
		}
		return err
	}

	out, err := e.roll(t, tier, a)
	if err != nil {
		return err
	}
	out.record.Cost = share

	if share > 0 {
		if _, err := e.actors.AdjustGold(ctx, a.ID, -share); err != nil {
			return fmt.Errorf("charge %d gp: %w", share, err)
		}
	}

	out.entries = append(out.entries, e.modifierEntries(mod)...)

	playerID := p.User.ID
	if _, err := e.mutate(ctx, "resolve", func(s *model.Session) error {
		s.Results[playerID] = append(s.Results[playerID], out.entries...)
		s.Rolls[playerID] = out.record
		return nil
	}); err != nil {
		logger.Errorf("results of %s were not stored: %v", playerID, err)
		if share > 0 {
			if _, rerr := e.actors.AdjustGold(ctx, a.ID, share); rerr != nil {
				logger.Errorf("refund %d gp to %s: %v", share, a.ID, rerr)
			}
		}
		return err
	}

	// the results are stored; gold and xp failures are logged and the results kept
	if out.record.Gold != 0 {
		if err := e.applyGold(ctx, a.ID, out.record.Gold); err != nil {
			logger.Warnf("gold change for %s: %v", a.ID, err)
		}
	}
	if out.record.XP != 0 {
		if _, err := e.actors.AddXP(ctx, a.ID, out.record.XP); err != nil {
			logger.Warnf("xp change for %s: %v", a.ID, err)
		}
	}

	for _, entry := range out.entries {
		e.announce(ctx, p.User.ID, p.User.Name, entry)
	}

	return nil
}

func (e *Engine) roll(t *activeTable, tier model.Tier, a actorModel.Actor) (outcome, error) {
	var out outcome

	expr, err := dice.Parse(t.die)
	if err != nil {
		return out, fmt.Errorf("%w: table die: %v", ErrInvalidInput, err)
	}

	natural := expr.Roll(e.dice).Total
	renown := RenownBonus(a.Renown)
	total := natural + tier.Bonus + renown

	out.record = model.RollRecord{
		ActorID:     a.ID,
		Die:         expr.String(),
		Natural:     natural,
		TierBonus:   tier.Bonus,
		RenownBonus: renown,
		Total:       total,
		Timestamp:   e.now(),
	}

	if t.mode != model.ModeExpanded {
		row, ok := model.MatchRoll(t.custom.Outcomes, model.OutcomeRoll, total)
		if !ok {
			return out, fmt.Errorf("%w: %d on %s", ErrMissingRow, total, t.name)
		}

		text := row.Description
		if row.Benefit != "" {
			text = fmt.Sprintf("%s: %s", row.Description, row.Benefit)
		}
		out.record.Row = row.Roll
		out.record.Gold = row.Gold
		out.record.XP = row.XP
		out.entries = append(out.entries, e.entry(model.KindBenefit, text, model.SourceRoll))

		return out, nil
	}

	recipe, ok := model.MatchRoll(t.expanded.Outcomes, model.RecipeRoll, total)
	if !ok {
		return out, fmt.Errorf("%w: %d on %s", ErrMissingRow, total, t.name)
	}
	out.record.Row = recipe.Roll
	out.record.Gold = recipe.Modifier
	out.record.XP = recipe.XP

	for i := 0; i < recipe.Benefits; i++ {
		entry, err := e.draw(t.expanded, model.KindBenefit)
		if err != nil {
			return out, err
		}
		out.entries = append(out.entries, entry)
	}
	for i := 0; i < recipe.Mishaps; i++ {
		entry, err := e.draw(t.expanded, model.KindMishap)
		if err != nil {
			return out, err
		}
		out.entries = append(out.entries, entry)
	}

	return out, nil
}

// draw rolls one benefit or mishap from the expanded table's lookup list.
func (e *Engine) draw(t model.ExpandedTable, kind model.Kind) (model.ResultEntry, error) {
	list, die := t.Benefits, t.BenefitDie
	if kind == model.KindMishap {
		list, die = t.Mishaps, t.MishapDie
	}

	var expr dice.Expr
	if die != "" {
		var err error
		if expr, err = dice.Parse(die); err != nil {
			return model.ResultEntry{}, fmt.Errorf("%w: %s die: %v", ErrInvalidInput, kind, err)
		}
	} else {
		highest := model.HighestRoll(list, model.EntryRoll)
		if highest < 1 {
			return model.ResultEntry{}, fmt.Errorf("%w: empty %s list on %s", ErrMissingRow, kind, t.Name)
		}
		expr = dice.Die(highest)
	}

	n := expr.Roll(e.dice).Total
	row, ok := model.MatchRoll(list, model.EntryRoll, n)
	if !ok {
		return model.ResultEntry{}, fmt.Errorf("%w: %s %d on %s", ErrMissingRow, kind, n, t.Name)
	}

	return e.entry(kind, row.Description, model.SourceRoll), nil
}

func (e *Engine) modifierEntries(mod model.Modifier) []model.ResultEntry {
	var list []model.ResultEntry
	if mod.Outcome != "" {
		list = append(list, e.entry(model.KindBenefit, mod.Outcome, model.SourceModifier))
	}
	if mod.Benefits != "" {
		list = append(list, e.entry(model.KindBenefit, mod.Benefits, model.SourceModifier))
	}
	if mod.Mishaps != "" {
		list = append(list, e.entry(model.KindMishap, mod.Mishaps, model.SourceModifier))
	}
	return list
}

func (e *Engine) entry(kind model.Kind, text, source string) model.ResultEntry {
	return model.ResultEntry{ID: e.newID(), Kind: kind, Text: text, Source: source, Timestamp: e.now()}
}

// applyGold adds or removes gold; a loss larger than the purse empties it, silver and copper
// included, instead of failing.
func (e *Engine) applyGold(ctx context.Context, actorID string, delta int) error {
	_, err := e.actors.AdjustGold(ctx, actorID, delta)
	if !errors.Is(err, actorDb.ErrInsufficientFunds) {
		return err
	}

	_, err = e.actors.EmptyPurse(ctx, actorID)
	return err
}

func (e *Engine) announce(ctx context.Context, playerID, name string, entry model.ResultEntry) {
	level, messageID := notify.LevelBenefit, "carousing.benefit"
	if entry.Kind == model.KindMishap {
		level, messageID = notify.LevelMishap, "carousing.mishap"
	}

	e.toast(ctx, playerID, level, messageID, map[string]interface{}{
		"Player": name,
		"Text":   entry.Text,
	})
}
