package stdio

import (
	"os/user"
)

// UserProvider resolves the user ID of the stdio peer. No bearer token is
// exchanged over stdio.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// OSUserProvider uses the operating system's current user: the username when
// set, the uid otherwise.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.Username != "" {
		return u.Username, nil
	}
	return u.Uid, nil
}

// StaticUserProvider always reports the same ID.
type StaticUserProvider string

func (s StaticUserProvider) CurrentUserID() (string, error) { return string(s), nil }
