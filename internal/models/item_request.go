package models

import "time"

// ItemRequest is a user's ask for restock. The requesting user is not recorded
// on the document; callers track it.
type ItemRequest struct {
	ID        string        `bson:"_id" json:"id"`
	Items     []LineItem    `bson:"items" json:"items"`
	Status    RequestStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	Version   int64         `bson:"version" json:"version"`
}

func (r *ItemRequest) GetID() string             { return r.ID }
func (r *ItemRequest) GetVersion() int64         { return r.Version }
func (r *ItemRequest) SetVersion(v int64)        { r.Version = v }
func (r *ItemRequest) GetStatus() RequestStatus  { return r.Status }
func (r *ItemRequest) SetStatus(s RequestStatus) { r.Status = s }
func (r *ItemRequest) GetItems() []LineItem      { return r.Items }
