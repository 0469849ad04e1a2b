package models

// UserDetails is the directory entry used to resolve notification recipients.
// UserID is the identity provider's subject; ID is the storage key.
type UserDetails struct {
	ID        string `bson:"_id" json:"id"`
	UserID    string `bson:"userId" json:"userId"`
	FirstName string `bson:"firstName" json:"firstName"`
	LastName  string `bson:"lastName" json:"lastName"`
	Email     string `bson:"email" json:"email"`
	Role      string `bson:"role" json:"role"`
	Version   int64  `bson:"version" json:"version"`
}

func (u *UserDetails) GetID() string      { return u.ID }
func (u *UserDetails) GetVersion() int64  { return u.Version }
func (u *UserDetails) SetVersion(v int64) { u.Version = v }
