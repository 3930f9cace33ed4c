package model

// User is the public identity of an account on the remote service.
type User struct {
	ID    string `json:"_id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// Session is the authenticated identity and credential of this client.
// User is set iff Token is set and has not expired.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Valid reports whether the session carries both a token and a user.
func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.User != nil
}
