package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// FileReference points at a receipt stored in blob storage.
type FileReference struct {
	Name        string `bson:"name" json:"fileName"`
	URL         string `bson:"url" json:"fileUrl"`
	Size        int64  `bson:"size" json:"fileSize"`
	ContentType string `bson:"contentType" json:"contentType"`
}

// PurchaseRequest is an admin-approved purchase owned by UserID.
type PurchaseRequest struct {
	ID        string          `bson:"_id" json:"id"`
	Items     []LineItem      `bson:"items" json:"items"`
	UserID    string          `bson:"userId" json:"userId"`
	Receipts  []FileReference `bson:"receipts" json:"receiptImageUrl"`
	Status    RequestStatus   `bson:"status" json:"status"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdDate"`
	Version   int64           `bson:"version" json:"version"`
}

// TotalPrice is derived from the line items and never stored.
func (r *PurchaseRequest) TotalPrice() decimal.Decimal {
	return SumTotal(r.Items)
}

func (r *PurchaseRequest) GetID() string             { return r.ID }
func (r *PurchaseRequest) GetVersion() int64         { return r.Version }
func (r *PurchaseRequest) SetVersion(v int64)        { r.Version = v }
func (r *PurchaseRequest) GetStatus() RequestStatus  { return r.Status }
func (r *PurchaseRequest) SetStatus(s RequestStatus) { r.Status = s }
func (r *PurchaseRequest) GetItems() []LineItem      { return r.Items }

// MarshalJSON adds the derived totalPrice to the response body.
func (r PurchaseRequest) MarshalJSON() ([]byte, error) {
	type plain PurchaseRequest
	return json.Marshal(struct {
		plain
		TotalPrice decimal.Decimal `json:"totalPrice"`
	}{plain(r), r.TotalPrice()})
}
