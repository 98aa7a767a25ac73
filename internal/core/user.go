package core

import "time"

type (
	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		Name         string    `json:"name"`
		PasswordHash string    `json:"passwordHash,omitempty"`
		AuthProvider string    `json:"authProvider"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Session struct {
		Token     string    `json:"token"`
		UserID    string    `json:"userId"`
		Email     string    `json:"email"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
)

// Public strips credentials before the user leaves the service boundary.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
