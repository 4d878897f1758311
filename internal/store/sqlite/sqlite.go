// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// options holds driver-specific settings decoded from DriverConfig.Options.
type options struct {
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
	JournalMode   string `mapstructure:"journal_mode"`
}

func defaultOptions() options {
	return options{
		BusyTimeoutMs: 5000,
		JournalMode:   "WAL",
	}
}

// Driver implements store.Backend using SQLite via GORM.
type Driver struct {
	dataDir string
	opts    options
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Backend, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	opts := defaultOptions()
	if cfg.Options != nil {
		if err := mapstructure.Decode(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid sqlite options: %w", err)
		}
	}

	return &Driver{
		dataDir: cfg.DataDir,
		opts:    opts,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the database, applies pragmas, and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "reliefmesh.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// SQLite allows one writer at a time; WAL plus a busy timeout keeps
	// concurrent short-lived writes from failing with SQLITE_BUSY.
	db.Exec(fmt.Sprintf("PRAGMA journal_mode = %s", d.opts.JournalMode))
	db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.opts.BusyTimeoutMs))

	if err := db.AutoMigrate(
		&store.Request{},
		&store.Responder{},
		&store.ThreadEntry{},
		&store.FulfillmentRequest{},
		&store.InventoryItem{},
		&store.SupplierProfile{},
		&store.Organization{},
		&store.User{},
		&store.Feedback{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrAlreadyExists
	default:
		return err
	}
}

// Requests

func (d *Driver) CreateRequest(ctx context.Context, req *store.Request) error {
	return translate(d.db.WithContext(ctx).Create(req).Error)
}

func (d *Driver) GetRequest(ctx context.Context, id string) (*store.Request, error) {
	var req store.Request
	if err := d.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (d *Driver) UpdateRequest(ctx context.Context, req *store.Request) error {
	return translate(d.db.WithContext(ctx).Save(req).Error)
}

// ClaimPrimaryResponder guards the write on the primary slot still being
// empty, so two concurrent first responders cannot both land as primary.
func (d *Driver) ClaimPrimaryResponder(ctx context.Context, req *store.Request) error {
	res := d.db.WithContext(ctx).
		Model(&store.Request{}).
		Where("id = ? AND primary_responder_id = ''", req.ID).
		Select("*").
		Updates(req)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing request from a lost claim.
		if _, err := d.GetRequest(ctx, req.ID); err != nil {
			return err
		}
		return store.ErrStatusConflict
	}
	return nil
}

func (d *Driver) ListRequests(ctx context.Context, filter store.RequestFilter) ([]*store.Request, error) {
	q := d.db.WithContext(ctx).Model(&store.Request{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.RequesterID != "" {
		q = q.Where("requester_id = ?", filter.RequesterID)
	}
	var out []*store.Request
	if err := q.Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Responders

func (d *Driver) AddResponder(ctx context.Context, r *store.Responder) error {
	return translate(d.db.WithContext(ctx).Create(r).Error)
}

func (d *Driver) GetResponder(ctx context.Context, requestID, identityID string) (*store.Responder, error) {
	var r store.Responder
	err := d.db.WithContext(ctx).
		First(&r, "request_id = ? AND identity_id = ?", requestID, identityID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (d *Driver) UpdateResponder(ctx context.Context, r *store.Responder) error {
	return translate(d.db.WithContext(ctx).Save(r).Error)
}

func (d *Driver) ListResponders(ctx context.Context, requestID string) ([]*store.Responder, error) {
	var out []*store.Responder
	err := d.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("joined_at, id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Thread

func (d *Driver) AppendThreadEntry(ctx context.Context, e *store.ThreadEntry) error {
	return translate(d.db.WithContext(ctx).Create(e).Error)
}

func (d *Driver) RecentThreadEntries(ctx context.Context, requestID string, n int) ([]*store.ThreadEntry, error) {
	q := d.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("seq DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	var out []*store.ThreadEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Fulfillments

func (d *Driver) CreateFulfillment(ctx context.Context, f *store.FulfillmentRequest) error {
	return translate(d.db.WithContext(ctx).Create(f).Error)
}

func (d *Driver) GetFulfillment(ctx context.Context, id string) (*store.FulfillmentRequest, error) {
	var f store.FulfillmentRequest
	if err := d.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (d *Driver) UpdateFulfillment(ctx context.Context, f *store.FulfillmentRequest) error {
	return translate(d.db.WithContext(ctx).Save(f).Error)
}

// TransitionFulfillment puts the status guard in the WHERE clause, the same
// shape as DecrementQuantity: two concurrent transitions on the same row
// serialize in SQLite, the first wins, the loser matches zero rows.
func (d *Driver) TransitionFulfillment(ctx context.Context, f *store.FulfillmentRequest, from string) error {
	res := d.db.WithContext(ctx).
		Model(&store.FulfillmentRequest{}).
		Where("id = ? AND status = ?", f.ID, from).
		Select("*").
		Updates(f)
	return d.fulfillmentClaimResult(ctx, res, f.ID)
}

func (d *Driver) ClaimFulfillmentRating(ctx context.Context, f *store.FulfillmentRequest) error {
	res := d.db.WithContext(ctx).
		Model(&store.FulfillmentRequest{}).
		Where("id = ? AND rating = 0", f.ID).
		Select("*").
		Updates(f)
	return d.fulfillmentClaimResult(ctx, res, f.ID)
}

func (d *Driver) fulfillmentClaimResult(ctx context.Context, res *gorm.DB, id string) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing fulfillment from a lost claim.
		if _, err := d.GetFulfillment(ctx, id); err != nil {
			return err
		}
		return store.ErrStatusConflict
	}
	return nil
}

func (d *Driver) ListFulfillmentsByRequest(ctx context.Context, requestID string) ([]*store.FulfillmentRequest, error) {
	var out []*store.FulfillmentRequest
	err := d.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) ListFulfillmentsBySupplier(ctx context.Context, supplierID string) ([]*store.FulfillmentRequest, error) {
	var out []*store.FulfillmentRequest
	err := d.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) SupplierLinkedToRequest(ctx context.Context, requestID, supplierID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&store.FulfillmentRequest{}).
		Where("request_id = ? AND supplier_id = ?", requestID, supplierID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Inventory

func (d *Driver) CreateItem(ctx context.Context, item *store.InventoryItem) error {
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	return translate(d.db.WithContext(ctx).Create(item).Error)
}

func (d *Driver) GetItem(ctx context.Context, id string) (*store.InventoryItem, error) {
	var item store.InventoryItem
	if err := d.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (d *Driver) UpdateItem(ctx context.Context, item *store.InventoryItem) error {
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	return translate(d.db.WithContext(ctx).Save(item).Error)
}

func (d *Driver) DeleteItem(ctx context.Context, id string) error {
	res := d.db.WithContext(ctx).Delete(&store.InventoryItem{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) ListItemsBySupplier(ctx context.Context, supplierID string) ([]*store.InventoryItem, error) {
	var out []*store.InventoryItem
	err := d.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) ListItemsByCategory(ctx context.Context, category string, inStockOnly bool) ([]*store.InventoryItem, error) {
	q := d.db.WithContext(ctx).Where("category = ?", category)
	if inStockOnly {
		q = q.Where("quantity > 0")
	}
	var out []*store.InventoryItem
	if err := q.Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DecrementQuantity performs the check-and-subtract as a single conditional
// UPDATE. The quantity guard lives in the WHERE clause, so two concurrent
// dispatches against the same item cannot both pass the stock check.
func (d *Driver) DecrementQuantity(ctx context.Context, itemID string, qty int) (*store.InventoryItem, error) {
	res := d.db.WithContext(ctx).
		Model(&store.InventoryItem{}).
		Where("id = ? AND quantity >= ?", itemID, qty).
		Updates(map[string]any{
			"quantity":     gorm.Expr("quantity - ?", qty),
			"is_low_stock": gorm.Expr("quantity - ? <= low_stock_threshold", qty),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish missing item from insufficient stock.
		if _, err := d.GetItem(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, store.ErrInsufficientStock
	}
	return d.GetItem(ctx, itemID)
}

// Suppliers

func (d *Driver) CreateSupplier(ctx context.Context, s *store.SupplierProfile) error {
	return translate(d.db.WithContext(ctx).Create(s).Error)
}

func (d *Driver) GetSupplier(ctx context.Context, id string) (*store.SupplierProfile, error) {
	var s store.SupplierProfile
	if err := d.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (d *Driver) GetSupplierByOwner(ctx context.Context, ownerID string) (*store.SupplierProfile, error) {
	var s store.SupplierProfile
	if err := d.db.WithContext(ctx).First(&s, "owner_id = ?", ownerID).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (d *Driver) UpdateSupplier(ctx context.Context, s *store.SupplierProfile) error {
	return translate(d.db.WithContext(ctx).Save(s).Error)
}

func (d *Driver) ListSuppliers(ctx context.Context) ([]*store.SupplierProfile, error) {
	var out []*store.SupplierProfile
	if err := d.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AddRatingSample updates sum, count, and average inside one transaction.
func (d *Driver) AddRatingSample(ctx context.Context, supplierID string, rating int) (*store.SupplierProfile, error) {
	var out *store.SupplierProfile
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&store.SupplierProfile{}).
			Where("id = ?", supplierID).
			Updates(map[string]any{
				"rating_sum":   gorm.Expr("rating_sum + ?", rating),
				"rating_count": gorm.Expr("rating_count + 1"),
				"updated_at":   time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}

		var s store.SupplierProfile
		if err := tx.First(&s, "id = ?", supplierID).Error; err != nil {
			return translate(err)
		}
		s.RatingAverage = decimal.NewFromInt(s.RatingSum).
			DivRound(decimal.NewFromInt(s.RatingCount), 2)
		if err := tx.Model(&store.SupplierProfile{}).
			Where("id = ?", supplierID).
			Update("rating_average", s.RatingAverage).Error; err != nil {
			return err
		}
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Organizations

func (d *Driver) CreateOrg(ctx context.Context, o *store.Organization) error {
	return translate(d.db.WithContext(ctx).Create(o).Error)
}

func (d *Driver) GetOrg(ctx context.Context, id string) (*store.Organization, error) {
	var o store.Organization
	if err := d.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (d *Driver) GetOrgByOwner(ctx context.Context, ownerID string) (*store.Organization, error) {
	var o store.Organization
	if err := d.db.WithContext(ctx).First(&o, "owner_id = ?", ownerID).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (d *Driver) UpdateOrg(ctx context.Context, o *store.Organization) error {
	return translate(d.db.WithContext(ctx).Save(o).Error)
}

func (d *Driver) ListOrgs(ctx context.Context) ([]*store.Organization, error) {
	var out []*store.Organization
	if err := d.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Users

func (d *Driver) CreateUser(ctx context.Context, u *store.User) error {
	return translate(d.db.WithContext(ctx).Create(u).Error)
}

func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	if err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (d *Driver) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	var u store.User
	if err := d.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (d *Driver) UpdateUser(ctx context.Context, u *store.User) error {
	return translate(d.db.WithContext(ctx).Save(u).Error)
}

func (d *Driver) ListUsers(ctx context.Context) ([]*store.User, error) {
	var out []*store.User
	if err := d.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Feedback

func (d *Driver) CreateFeedback(ctx context.Context, f *store.Feedback) error {
	return translate(d.db.WithContext(ctx).Create(f).Error)
}

func (d *Driver) ListFeedback(ctx context.Context) ([]*store.Feedback, error) {
	var out []*store.Feedback
	if err := d.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
