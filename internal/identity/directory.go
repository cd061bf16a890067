// Package identity answers who a caller is and who is online, combining the user repository
// with live presence.
package identity

import (
	"context"
	"errors"
	"fmt"

	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/logging"
)

var ErrUnknownUser = fmt.Errorf("unknown user")

type Users interface {
	Fetch(userID string) (userModel.User, error)
}

// Presence is the online set across every node serving the session.
type Presence interface {
	OnlineUsers(ctx context.Context) ([]string, error)
}

func NewDirectory(users Users, presence Presence) *Directory {
	return &Directory{users: users, presence: presence}
}

type Directory struct {
	users    Users
	presence Presence
}

func (d *Directory) User(ctx context.Context, id string) (userModel.User, error) {
	u, err := d.users.Fetch(id)
	if err != nil {
		if errors.Is(err, userDb.ErrNotFound) {
			return u, fmt.Errorf("%s: %w", id, ErrUnknownUser)
		}
		return u, fmt.Errorf("fetch user: %w", err)
	}

	return u, nil
}

// Online returns the known users with a live connection, ordered by id. Unknown ids are skipped.
func (d *Directory) Online(ctx context.Context) ([]userModel.User, error) {
	logger := logging.FromContext(ctx).Named("identity.Online")

	ids, err := d.presence.OnlineUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}

	var list []userModel.User
	for _, id := range ids {
		u, err := d.users.Fetch(id)
		if err != nil {
			if errors.Is(err, userDb.ErrNotFound) {
				logger.Debugf("skipping unknown online user %s", id)
				continue
			}
			return nil, fmt.Errorf("fetch user %s: %w", id, err)
		}
		list = append(list, u)
	}

	return list, nil
}
