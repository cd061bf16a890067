package carousing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bloops-games/carousing/internal/carousing/model"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
)

// AddResult appends a GM-authored result for playerID. With empty text on an expanded table the
// entry is drawn from the table's benefit or mishap list.
func (e *Engine) AddResult(ctx context.Context, callerID, playerID string, kind model.Kind, text string) (bool, error) {
	const op = "addResult"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return false, e.reject(ctx, op, callerID, err)
	}
	if _, err := model.ParseKind(string(kind)); err != nil {
		return false, e.reject(ctx, op, callerID, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	if playerID == "" {
		return false, e.reject(ctx, op, callerID, fmt.Errorf("%w: empty player", ErrInvalidInput))
	}

	entry, err := e.manualEntry(ctx, kind, strings.TrimSpace(text))
	if err != nil {
		return false, e.reject(ctx, op, callerID, err)
	}

	if _, err := e.mutate(ctx, op, func(s *model.Session) error {
		s.Results[playerID] = append(s.Results[playerID], entry)
		return nil
	}); err != nil {
		return false, e.reject(ctx, op, callerID, err)
	}

	name := playerID
	if u, err := e.identity.User(ctx, playerID); err == nil {
		name = u.Name
	}
	e.announce(ctx, playerID, name, entry)

	return true, nil
}

func (e *Engine) manualEntry(ctx context.Context, kind model.Kind, text string) (model.ResultEntry, error) {
	if text != "" {
		return e.entry(kind, text, model.SourceManual), nil
	}

	mode, err := e.Mode(ctx)
	if err != nil {
		return model.ResultEntry{}, err
	}
	if mode != model.ModeExpanded {
		return model.ResultEntry{}, fmt.Errorf("%w: empty result text", ErrInvalidInput)
	}

	s, err := e.Session(ctx)
	if err != nil {
		return model.ResultEntry{}, err
	}
	t, err := e.table(ctx, mode, s.SelectedTableID)
	if err != nil {
		return model.ResultEntry{}, err
	}

	entry, err := e.draw(t.expanded, kind)
	if err != nil {
		return entry, err
	}
	entry.Source = model.SourceManual

	return entry, nil
}

// RemoveResult deletes the index-th result of the given kind. An index outside the player's
// results of that kind reports false and changes nothing.
func (e *Engine) RemoveResult(ctx context.Context, callerID, playerID string, kind model.Kind, index int) (bool, error) {
	const op = "removeResult"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return false, e.reject(ctx, op, callerID, err)
	}

	var removed bool
	if _, err := e.mutate(ctx, op, func(s *model.Session) error {
		removed = s.RemoveResult(playerID, kind, index)
		if !removed {
			return errUnchanged
		}
		return nil
	}); err != nil {
		return false, e.reject(ctx, op, callerID, err)
	}

	return removed, nil
}

// AwardGold is the GM's coin flow for characters outside a roll. Negative amounts spend.
func (e *Engine) AwardGold(ctx context.Context, callerID, actorID string, gold int) (actorModel.Actor, error) {
	const op = "awardGold"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return actorModel.Actor{}, e.reject(ctx, op, callerID, err)
	}

	a, err := e.actors.AdjustGold(ctx, actorID, gold)
	if err != nil {
		if errors.Is(err, actorDb.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrUnknownActor, actorID)
		}
		return a, e.reject(ctx, op, callerID, err)
	}

	return a, nil
}
