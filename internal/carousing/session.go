package carousing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloops-games/carousing/internal/carousing/model"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	"github.com/bloops-games/carousing/internal/logging"
)

// SetTable selects the active table and always drops the tier selection, since tier indexes
// belong to the previous table.
func (e *Engine) SetTable(ctx context.Context, callerID, tableID string) error {
	const op = "setTable"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	mode, err := e.Mode(ctx)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	if _, err := e.table(ctx, mode, tableID); err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	_, err = e.mutate(ctx, op, func(s *model.Session) error {
		s.SelectedTableID = tableID
		s.SelectedTier = nil
		return nil
	})

	return e.reject(ctx, op, callerID, err)
}

// SetTier selects a tier of the active table, or clears the selection when tier is nil.
func (e *Engine) SetTier(ctx context.Context, callerID string, tier *int) error {
	const op = "setTier"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	if tier == nil {
		_, err := e.mutate(ctx, op, func(s *model.Session) error {
			if s.SelectedTier == nil {
				return errUnchanged
			}
			s.SelectedTier = nil
			return nil
		})
		return e.reject(ctx, op, callerID, err)
	}

	mode, err := e.Mode(ctx)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	current, err := e.Session(ctx)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	// the table is read outside the write transaction and pinned by id inside it
	t, err := e.table(ctx, mode, current.SelectedTableID)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	if _, ok := model.TierAt(t.tiers, *tier); !ok {
		return e.reject(ctx, op, callerID, fmt.Errorf("%w: %d of %d", ErrTierOutOfRange, *tier, len(t.tiers)))
	}

	index := *tier
	_, err = e.mutate(ctx, op, func(s *model.Session) error {
		if s.SelectedTableID != t.id {
			return ErrStale
		}
		s.SelectedTier = &index
		return nil
	})

	return e.reject(ctx, op, callerID, err)
}

// SetDrop commits actorID as playerID's character, or withdraws the player when actorID is
// empty. Players may only drop their own characters; the GM may drop any character for anyone.
// Any change of the drop clears the player's confirmation.
func (e *Engine) SetDrop(ctx context.Context, callerID, playerID, actorID string) error {
	const op = "setDrop"

	caller, err := e.requireUser(ctx, callerID)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	if !caller.GM && caller.ID != playerID {
		return e.reject(ctx, op, callerID, ErrForbidden)
	}
	if playerID == "" {
		return e.reject(ctx, op, callerID, fmt.Errorf("%w: empty player", ErrInvalidInput))
	}

	if actorID != "" {
		a, err := e.actors.Actor(ctx, actorID)
		if err != nil {
			if errors.Is(err, actorDb.ErrNotFound) {
				err = fmt.Errorf("%w: %s", ErrUnknownActor, actorID)
			}
			return e.reject(ctx, op, callerID, err)
		}
		if !caller.GM && a.OwnerID != playerID {
			return e.reject(ctx, op, callerID, ErrForbidden)
		}
	}

	_, err = e.mutate(ctx, op, func(s *model.Session) error {
		if actorID == "" {
			if !s.HasDrop(playerID) && !s.Confirmations[playerID] {
				return errUnchanged
			}
			delete(s.Drops, playerID)
			delete(s.Confirmations, playerID)
			return nil
		}

		if s.Drops[playerID] == actorID {
			return errUnchanged
		}
		s.Drops[playerID] = actorID
		delete(s.Confirmations, playerID)
		return nil
	})

	return e.reject(ctx, op, callerID, err)
}

// SetConfirmation records a player's ready flag. Confirming without a drop is rejected and any
// stale flag is cleared.
func (e *Engine) SetConfirmation(ctx context.Context, callerID, playerID string, confirmed bool) error {
	const op = "setConfirmation"

	caller, err := e.requireUser(ctx, callerID)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	if !caller.GM && caller.ID != playerID {
		return e.reject(ctx, op, callerID, ErrForbidden)
	}

	var rejected error
	_, err = e.mutate(ctx, op, func(s *model.Session) error {
		rejected = nil

		if confirmed && !s.HasDrop(playerID) {
			rejected = fmt.Errorf("%w: %s", ErrNoDrop, playerID)
			if !s.Confirmations[playerID] {
				return errUnchanged
			}
			delete(s.Confirmations, playerID)
			return nil
		}

		if s.Confirmations[playerID] == confirmed {
			return errUnchanged
		}
		if confirmed {
			s.Confirmations[playerID] = true
		} else {
			delete(s.Confirmations, playerID)
		}
		return nil
	})
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	return e.reject(ctx, op, callerID, rejected)
}

// SetModifier stores GM free text for one field of a player's modifier. Empty text clears the
// field.
func (e *Engine) SetModifier(ctx context.Context, callerID, playerID string, field model.ModifierField, text string) error {
	const op = "setModifier"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	var check model.Modifier
	if err := check.Set(field, text); err != nil {
		return e.reject(ctx, op, callerID, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	_, err := e.mutate(ctx, op, func(s *model.Session) error {
		m := s.Modifiers[playerID]
		before := m
		_ = m.Set(field, text)
		if m == before {
			return errUnchanged
		}

		if m.Empty() {
			delete(s.Modifiers, playerID)
		} else {
			s.Modifiers[playerID] = m
		}
		return nil
	})

	return e.reject(ctx, op, callerID, err)
}

// Reset starts a new round. Drops survive so players keep their characters; everything else
// the previous round produced is cleared.
func (e *Engine) Reset(ctx context.Context, callerID string) error {
	const op = "reset"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return e.reject(ctx, op, callerID, err)
	}

	_, err := e.mutate(ctx, op, func(s *model.Session) error {
		drops := s.Drops
		table := s.SelectedTableID

		*s = model.NewSession()
		s.Drops = drops
		s.SelectedTableID = table
		return nil
	})

	return e.reject(ctx, op, callerID, err)
}

// PruneOffline removes drops, confirmations and modifiers of players who are not online. It
// returns the number of players whose data was removed.
func (e *Engine) PruneOffline(ctx context.Context, callerID string) (int, error) {
	const op = "pruneOffline"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return 0, e.reject(ctx, op, callerID, err)
	}

	online, err := e.identity.Online(ctx)
	if err != nil {
		return 0, e.reject(ctx, op, callerID, fmt.Errorf("online users: %w", err))
	}

	keep := make(map[string]struct{}, len(online))
	for _, u := range online {
		if !u.GM {
			keep[u.ID] = struct{}{}
		}
	}

	var pruned int
	_, err = e.mutate(ctx, op, func(s *model.Session) error {
		gone := map[string]struct{}{}
		for id := range s.Drops {
			gone[id] = struct{}{}
		}
		for id := range s.Confirmations {
			gone[id] = struct{}{}
		}
		for id := range s.Modifiers {
			gone[id] = struct{}{}
		}
		for id := range keep {
			delete(gone, id)
		}

		pruned = len(gone)
		if pruned == 0 {
			return errUnchanged
		}

		for id := range gone {
			delete(s.Drops, id)
			delete(s.Confirmations, id)
			delete(s.Modifiers, id)
		}
		return nil
	})
	if err != nil {
		return 0, e.reject(ctx, op, callerID, err)
	}

	if pruned > 0 {
		logging.FromContext(ctx).Named("carousing.PruneOffline").Infof("pruned %d offline players", pruned)
	}

	return pruned, nil
}
