package domain

import "time"

type UserID int64

type User struct {
	ID        UserID
	Email     string
	CreatedAt time.Time
}

// Session is the authenticated backend session. Owned exclusively by the
// coordinator; mutated only by login, register, refresh and logout.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         User
}

func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}
