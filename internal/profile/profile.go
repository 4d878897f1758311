// Package profile manages organization and supplier profiles. The
// coordination core uses its ownership lookups to resolve the calling
// org or supplier from an identity.
package profile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/geo"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Store is the slice of the backend the profile service needs.
type Store interface {
	store.OrganizationStore
	store.SupplierStore
}

// Service provides profile CRUD and ownership resolution.
type Service struct {
	store Store
	log   *slog.Logger
}

func NewService(st Store, log *slog.Logger) *Service {
	return &Service{
		store: st,
		log:   logutil.Component(log, "profile"),
	}
}

// OrgInput is the payload for creating or updating an organization profile.
type OrgInput struct {
	Name        string
	Description string
	Phone       string
	Address     string
}

// CreateOrg creates the caller's organization profile. One per identity.
func (s *Service) CreateOrg(ctx context.Context, caller identity.Identity, in OrgInput) (*store.Organization, error) {
	if in.Name == "" {
		return nil, fault.Invalid(fault.ReasonMissingField, "name is required").With("field", "name")
	}

	org := &store.Organization{
		ID:          identity.NewID(),
		OwnerID:     caller.ID,
		Name:        in.Name,
		Description: in.Description,
		Phone:       in.Phone,
		Address:     in.Address,
	}
	if err := s.store.CreateOrg(ctx, org); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "identity already has an organization profile")
		}
		return nil, fault.Internal(err)
	}

	s.log.Info("organization created", "org_id", org.ID, "owner", caller.ID)
	return org, nil
}

// GetOrg returns one organization profile.
func (s *Service) GetOrg(ctx context.Context, id string) (*store.Organization, error) {
	org, err := s.store.GetOrg(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonOrgNotFound, "organization %s not found", id)
		}
		return nil, fault.Internal(err)
	}
	return org, nil
}

// OrgByOwner resolves the organization profile owned by an identity.
func (s *Service) OrgByOwner(ctx context.Context, ownerID string) (*store.Organization, error) {
	org, err := s.store.GetOrgByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonOrgNotFound, "identity has no organization profile")
		}
		return nil, fault.Internal(err)
	}
	return org, nil
}

// UpdateOrg edits the caller's organization profile. Owner only; an
// overseer may edit any profile.
func (s *Service) UpdateOrg(ctx context.Context, caller identity.Identity, id string, in OrgInput) (*store.Organization, error) {
	org, err := s.GetOrg(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.OwnerID != caller.ID && !caller.IsOverseer() {
		return nil, fault.NotAuthorized(fault.ReasonNotOwner, "only the profile owner may edit it")
	}
	if in.Name != "" {
		org.Name = in.Name
	}
	org.Description = in.Description
	org.Phone = in.Phone
	org.Address = in.Address

	if err := s.store.UpdateOrg(ctx, org); err != nil {
		return nil, fault.Internal(err)
	}
	return org, nil
}

// ListOrgs returns all organization profiles.
func (s *Service) ListOrgs(ctx context.Context) ([]*store.Organization, error) {
	out, err := s.store.ListOrgs(ctx)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// SupplierInput is the payload for creating or updating a supplier profile.
type SupplierInput struct {
	Name                  string
	Location              geo.Coordinate
	Address               string
	DeliveryEstimateHours int
}

// CreateSupplier creates the caller's supplier profile. One per identity.
func (s *Service) CreateSupplier(ctx context.Context, caller identity.Identity, in SupplierInput) (*store.SupplierProfile, error) {
	if in.Name == "" {
		return nil, fault.Invalid(fault.ReasonMissingField, "name is required").With("field", "name")
	}
	if !in.Location.IsZero() && !in.Location.Valid() {
		return nil, fault.Invalid(fault.ReasonInvalidField, "coordinate out of bounds").With("field", "location")
	}
	if in.DeliveryEstimateHours < 0 {
		return nil, fault.Invalid(fault.ReasonInvalidField, "delivery estimate cannot be negative").
			With("field", "delivery_estimate_hours")
	}

	sup := &store.SupplierProfile{
		ID:                    identity.NewID(),
		OwnerID:               caller.ID,
		Name:                  in.Name,
		Lat:                   in.Location.Lat,
		Lng:                   in.Location.Lng,
		Address:               in.Address,
		DeliveryEstimateHours: in.DeliveryEstimateHours,
	}
	if err := s.store.CreateSupplier(ctx, sup); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "identity already has a supplier profile")
		}
		return nil, fault.Internal(err)
	}

	s.log.Info("supplier created", "supplier_id", sup.ID, "owner", caller.ID)
	return sup, nil
}

// GetSupplier returns one supplier profile.
func (s *Service) GetSupplier(ctx context.Context, id string) (*store.SupplierProfile, error) {
	sup, err := s.store.GetSupplier(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonSupplierNotFound, "supplier %s not found", id)
		}
		return nil, fault.Internal(err)
	}
	return sup, nil
}

// SupplierByOwner resolves the supplier profile owned by an identity.
func (s *Service) SupplierByOwner(ctx context.Context, ownerID string) (*store.SupplierProfile, error) {
	sup, err := s.store.GetSupplierByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonSupplierNotFound, "identity has no supplier profile")
		}
		return nil, fault.Internal(err)
	}
	return sup, nil
}

// UpdateSupplier edits a supplier profile. Owner only; an overseer may
// edit any profile. The rating aggregate is never writable here.
func (s *Service) UpdateSupplier(ctx context.Context, caller identity.Identity, id string, in SupplierInput) (*store.SupplierProfile, error) {
	sup, err := s.GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	if sup.OwnerID != caller.ID && !caller.IsOverseer() {
		return nil, fault.NotAuthorized(fault.ReasonNotOwner, "only the profile owner may edit it")
	}
	if !in.Location.IsZero() && !in.Location.Valid() {
		return nil, fault.Invalid(fault.ReasonInvalidField, "coordinate out of bounds").With("field", "location")
	}
	if in.DeliveryEstimateHours < 0 {
		return nil, fault.Invalid(fault.ReasonInvalidField, "delivery estimate cannot be negative").
			With("field", "delivery_estimate_hours")
	}

	if in.Name != "" {
		sup.Name = in.Name
	}
	if !in.Location.IsZero() {
		sup.Lat = in.Location.Lat
		sup.Lng = in.Location.Lng
	}
	sup.Address = in.Address
	if in.DeliveryEstimateHours > 0 {
		sup.DeliveryEstimateHours = in.DeliveryEstimateHours
	}

	if err := s.store.UpdateSupplier(ctx, sup); err != nil {
		return nil, fault.Internal(err)
	}
	return sup, nil
}

// ListSuppliers returns all supplier profiles.
func (s *Service) ListSuppliers(ctx context.Context) ([]*store.SupplierProfile, error) {
	out, err := s.store.ListSuppliers(ctx)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}
