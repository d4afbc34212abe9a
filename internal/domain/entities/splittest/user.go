package splittest

import "strconv"

// User is either Authenticated or Anonymous.
type User interface {
	isUser()
}

// Authenticated is a user with a stable store identity.
type Authenticated struct {
	ID    int64
	Staff bool
}

// Anonymous is a visitor without a store identity.
type Anonymous struct{}

func (Authenticated) isUser() {}
func (Anonymous) isUser()     {}

// UserLabel renders a user for logs.
func UserLabel(u User) string {
	switch v := u.(type) {
	case Authenticated:
		return "user:" + strconv.FormatInt(v.ID, 10)
	default:
		return "anonymous"
	}
}
