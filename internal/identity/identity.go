// Package identity describes the caller on whose behalf a workflow operation
// runs. It is built by the auth middleware and passed explicitly.
package identity

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Owns reports whether the caller is the user identified by userID.
func (i Identity) Owns(userID string) bool {
	return i.UserID != "" && i.UserID == userID
}

// Anonymous reports whether no user is attached.
func (i Identity) Anonymous() bool { return i.UserID == "" }
