package models

import "time"

// InventoryRecord is one stocked article. Name is the natural key used by
// restocking and is matched exactly (case-sensitive); ID is the storage key.
type InventoryRecord struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Quantity      int       `bson:"quantity" json:"quantity"`
	Description   string    `bson:"description" json:"description"`
	LastStockedAt time.Time `bson:"lastStockedAt" json:"lastStocked"`
	Version       int64     `bson:"version" json:"version"`
}

func (r *InventoryRecord) GetID() string      { return r.ID }
func (r *InventoryRecord) GetVersion() int64  { return r.Version }
func (r *InventoryRecord) SetVersion(v int64) { r.Version = v }

// Document field names used in store queries.
const (
	FieldID        = "_id"
	FieldName      = "name"
	FieldQuantity  = "quantity"
	FieldStatus    = "status"
	FieldCreatedAt = "createdAt"
	FieldUserID    = "userId"
	FieldRole      = "role"
	FieldVersion   = "version"
)
