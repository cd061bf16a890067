package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bloops-games/carousing/internal/database/actor/model"
	"github.com/bloops-games/carousing/internal/logging"
)

var (
	ErrNotFound          = fmt.Errorf("actor not found")
	ErrInsufficientFunds = fmt.Errorf("insufficient funds")
	ErrOutOfRange        = fmt.Errorf("amount out of range")
)

// backend is where actor documents live: a bbolt bucket for a single node or a redis hash
// shared by every node.
type backend interface {
	get(ctx context.Context, id string) ([]byte, error)
	all(ctx context.Context) ([][]byte, error)
	// modify runs fn on the stored bytes (nil when absent) and writes the result atomically.
	modify(ctx context.Context, id string, fn func(current []byte) ([]byte, error)) error
}

type DB struct {
	backend backend
	now     func() time.Time
}

func (db *DB) Actor(ctx context.Context, id string) (model.Actor, error) {
	var a model.Actor

	bytes, err := db.backend.get(ctx, id)
	if err != nil {
		return a, fmt.Errorf("get actor %s: %w", id, err)
	}
	if err := decode(bytes, &a); err != nil {
		return a, fmt.Errorf("actor %s: %w", id, err)
	}

	return a, nil
}

func (db *DB) FetchByOwner(ctx context.Context, ownerID string) ([]model.Actor, error) {
	all, err := db.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	var list []model.Actor
	for _, a := range all {
		if a.OwnerID == ownerID {
			list = append(list, a)
		}
	}

	return list, nil
}

func (db *DB) FetchAll(ctx context.Context) ([]model.Actor, error) {
	raw, err := db.backend.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch actors: %w", err)
	}

	list := make([]model.Actor, 0, len(raw))
	for _, bytes := range raw {
		var a model.Actor
		if err := decode(bytes, &a); err != nil {
			return nil, err
		}
		list = append(list, a)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	return list, nil
}

func (db *DB) Store(ctx context.Context, a model.Actor) error {
	if a.ID == "" {
		return fmt.Errorf("actor id is empty")
	}
	if !a.Coins.Valid() || a.XP < 0 || a.XP > model.MaxGold {
		return fmt.Errorf("actor %s: %w", a.ID, ErrOutOfRange)
	}

	_, err := db.modify(ctx, a.ID, true, func(current *model.Actor) error {
		*current = a
		return nil
	})
	return err
}

// AdjustGold adds delta gold pieces. Spending converts the purse through copper and fails
// without change when the purse cannot cover it.
func (db *DB) AdjustGold(ctx context.Context, id string, delta int) (model.Actor, error) {
	if delta < -model.MaxGold || delta > model.MaxGold {
		return model.Actor{}, fmt.Errorf("adjust %s by %d: %w", id, delta, ErrOutOfRange)
	}

	return db.modify(ctx, id, false, func(a *model.Actor) error {
		if delta >= 0 {
			if a.Coins.GP > model.MaxGold-delta {
				return ErrOutOfRange
			}
			a.Coins.GP += delta
			return nil
		}

		total := a.Coins.Copper() + delta*model.CopperPerGold
		if total < 0 {
			return ErrInsufficientFunds
		}

		a.Coins = model.CoinsFromCopper(total)
		return nil
	})
}

// EmptyPurse drops every coin the actor carries.
func (db *DB) EmptyPurse(ctx context.Context, id string) (model.Actor, error) {
	return db.modify(ctx, id, false, func(a *model.Actor) error {
		a.Coins = model.Coins{}
		return nil
	})
}

// AddXP adds xp, keeping the total within zero and MaxGold.
func (db *DB) AddXP(ctx context.Context, id string, xp int) (model.Actor, error) {
	if xp < -model.MaxGold || xp > model.MaxGold {
		return model.Actor{}, fmt.Errorf("add %d xp to %s: %w", xp, id, ErrOutOfRange)
	}

	return db.modify(ctx, id, false, func(a *model.Actor) error {
		switch {
		case xp > 0 && a.XP > model.MaxGold-xp:
			a.XP = model.MaxGold
		case a.XP+xp < 0:
			a.XP = 0
		default:
			a.XP += xp
		}
		return nil
	})
}

func (db *DB) modify(ctx context.Context, id string, create bool, fn func(a *model.Actor) error) (model.Actor, error) {
	logger := logging.FromContext(ctx).Named("actor.modify")

	var out model.Actor
	if err := db.backend.modify(ctx, id, func(current []byte) ([]byte, error) {
		var a model.Actor
		if err := decode(current, &a); err != nil {
			if !create || err != ErrNotFound {
				return nil, err
			}
		}

		if err := fn(&a); err != nil {
			return nil, err
		}
		a.UpdatedAt = db.now()

		bytes, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}

		out = a
		return bytes, nil
	}); err != nil {
		return out, fmt.Errorf("modify actor %s: %w", id, err)
	}

	logger.Debugf("actor %s updated", id)

	return out, nil
}

func decode(bytes []byte, a *model.Actor) error {
	if len(bytes) == 0 {
		return ErrNotFound
	}

	if err := json.Unmarshal(bytes, a); err != nil {
		return fmt.Errorf("json unmarshal error, %w", err)
	}

	return nil
}
