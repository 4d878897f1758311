package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request is a persisted aid request. Status values are the canonical
// lifecycle enumeration owned by internal/request.
type Request struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Category    string `json:"category" gorm:"index"`
	Urgency     string `json:"urgency"`
	Description string `json:"description"`

	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`

	RequesterID   string `json:"requester_id" gorm:"index"`
	RequesterName string `json:"requester_name"`

	Status string `json:"status" gorm:"index"`

	// Denormalized first-accepted responder, for display. Immutable once set
	// except by explicit withdrawal-and-reassignment.
	PrimaryResponderID   string `json:"primary_responder_id"`
	PrimaryResponderName string `json:"primary_responder_name"`

	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	VerifiedBy  string     `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	VerifyNotes string     `json:"verify_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Responder is one identity attached to a request. Entries are never
// removed; withdrawal flips Status (audit trail).
type Responder struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	RequestID  string    `json:"request_id" gorm:"index;uniqueIndex:idx_request_identity"`
	IdentityID string    `json:"identity_id" gorm:"uniqueIndex:idx_request_identity"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Status     string    `json:"status"` // active, completed, withdrawn
	JoinedAt   time.Time `json:"joined_at"`
}

// ThreadEntry is one message in a request's conversation log. The log is a
// separate ordered table keyed by request id; Seq provides total order.
type ThreadEntry struct {
	Seq        uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	RequestID  string    `json:"request_id" gorm:"index"`
	SenderID   string    `json:"sender_identity"`
	SenderRole string    `json:"sender_role_tag"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}

// FulfillmentRequest is a persisted ask from a relief org to a supplier for
// quantity of one inventory item, tied to a parent request.
type FulfillmentRequest struct {
	ID         string `json:"id" gorm:"primaryKey"`
	RequestID  string `json:"request_id" gorm:"index"`
	OrgID      string `json:"org_id" gorm:"index"`
	SupplierID string `json:"supplier_id" gorm:"index"`
	ItemID     string `json:"item_id"`

	RequestedQty int    `json:"requested_qty"`
	FulfilledQty int    `json:"fulfilled_qty"`
	Status       string `json:"status"`
	Note         string `json:"note,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`

	DispatchedAt     *time.Time `json:"dispatched_at,omitempty"`
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`
	TrackingRef      string     `json:"tracking_ref,omitempty"`

	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	ReceivedBy    string     `json:"received_by,omitempty"`
	DeliveryNotes string     `json:"delivery_notes,omitempty"`

	// Rating is 1-5 once set; 0 means unrated.
	Rating        int    `json:"rating,omitempty"`
	RatingComment string `json:"rating_comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryItem is a supplier-owned stock record. IsLowStock is derived and
// recomputed on every mutation.
type InventoryItem struct {
	ID         string `json:"id" gorm:"primaryKey"`
	SupplierID string `json:"supplier_id" gorm:"index"`
	Category   string `json:"category" gorm:"index"`
	Name       string `json:"name"`

	Quantity          int  `json:"quantity"`
	LowStockThreshold int  `json:"low_stock_threshold"`
	IsLowStock        bool `json:"is_low_stock"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupplierProfile is a goods supplier. The rating aggregate is mutated only
// through AddRatingSample.
type SupplierProfile struct {
	ID      string `json:"id" gorm:"primaryKey"`
	OwnerID string `json:"owner_id" gorm:"uniqueIndex"`
	Name    string `json:"name"`

	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`

	RatingSum     int64           `json:"rating_sum"`
	RatingCount   int64           `json:"rating_count"`
	RatingAverage decimal.Decimal `json:"rating_average" gorm:"type:numeric"`

	// DeliveryEstimateHours is the default ETA used when dispatch gives none.
	DeliveryEstimateHours int `json:"delivery_estimate_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organization is a relief org profile.
type Organization struct {
	ID          string `json:"id" gorm:"primaryKey"`
	OwnerID     string `json:"owner_id" gorm:"uniqueIndex"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a registered identity.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Feedback is a site feedback submission.
type Feedback struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
