package models

// User is the identity of a signed-in user.
type User struct {
	Username   string            `json:"username" yaml:"username"`
	Email      string            `json:"email" yaml:"email"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// DisplayName returns the most human-friendly identifier available.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.Username
	}
}

// Session is the persisted part of an authenticated session. Credentials are never part of it.
type Session struct {
	User            *User `json:"user" yaml:"user"`
	IsAuthenticated bool  `json:"is_authenticated" yaml:"is_authenticated"`
}
