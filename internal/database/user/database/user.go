package database

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bloops-games/carousing/internal/cache"
	"github.com/bloops-games/carousing/internal/database/user/model"
)

var ErrNotFound = fmt.Errorf("not found")

const (
	usersSpace       = "users"
	credentialsSpace = "credentials"
)

// backend stores raw values by space and key: a bbolt bucket per space or a redis hash.
type backend interface {
	get(space, key string) ([]byte, error)
	all(space string) ([][]byte, error)
	put(space, key string, value []byte) error
}

type DB struct {
	backend backend

	cache cache.Cache
}

type fetchFn func(key string) ([]byte, error)

func (db *DB) cachedValue(key string, fn fetchFn) (model.User, error) {
	if db.cache != nil {
		v, ok := db.cache.Get(key)
		if ok {
			return v.(model.User), nil
		}
	}

	var u model.User
	bytes, err := fn(key)
	if err != nil {
		return u, fmt.Errorf("fetch: %w", err)
	}

	if len(bytes) == 0 {
		return u, ErrNotFound
	}

	if err := json.Unmarshal(bytes, &u); err != nil {
		return u, fmt.Errorf("unmarshal: %w", err)
	}

	if db.cache != nil {
		db.cache.Add(key, u)
	}

	return u, nil
}

func (db *DB) Fetch(userID string) (model.User, error) {
	u, err := db.cachedValue(userID, func(key string) ([]byte, error) {
		return db.backend.get(usersSpace, key)
	})
	if err != nil {
		return u, fmt.Errorf("cached value: %w", err)
	}

	return u, nil
}

func (db *DB) FetchAll() ([]model.User, error) {
	raw, err := db.backend.all(usersSpace)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	list := make([]model.User, 0, len(raw))
	for _, v := range raw {
		var u model.User
		if err := json.Unmarshal(v, &u); err != nil {
			return nil, fmt.Errorf("json unmarshal error, %w", err)
		}
		list = append(list, u)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	return list, nil
}

func (db *DB) Store(m model.User) error {
	if m.ID == "" {
		return fmt.Errorf("user id is empty")
	}

	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := db.backend.put(usersSpace, m.ID, bytes); err != nil {
		return fmt.Errorf("store user %s: %w", m.ID, err)
	}

	if db.cache != nil {
		db.cache.Add(m.ID, m)
	}

	return nil
}

// StoreSecretHash records the hash of the user's login secret. It is kept apart from the user
// document, which is shown to other players.
func (db *DB) StoreSecretHash(userID, hash string) error {
	if userID == "" || hash == "" {
		return fmt.Errorf("user id or secret hash is empty")
	}

	if err := db.backend.put(credentialsSpace, userID, []byte(hash)); err != nil {
		return fmt.Errorf("store secret for %s: %w", userID, err)
	}

	return nil
}

func (db *DB) SecretHash(userID string) (string, error) {
	bytes, err := db.backend.get(credentialsSpace, userID)
	if err != nil {
		return "", fmt.Errorf("fetch secret for %s: %w", userID, err)
	}
	if len(bytes) == 0 {
		return "", ErrNotFound
	}

	return string(bytes), nil
}
