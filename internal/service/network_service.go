package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type networkRepository interface {
	ListSubnets(ctx context.Context) ([]models.Subnet, error)
	FindSubnetByID(ctx context.Context, id string) (*models.Subnet, error)
	CreateSubnet(ctx context.Context, subnet *models.Subnet) error
	UpdateSubnet(ctx context.Context, subnet *models.Subnet) error
	CountCenters(ctx context.Context, subnetID string) (int, error)
	DeleteSubnet(ctx context.Context, id string) error
	ListCenters(ctx context.Context, filter models.CenterFilter) ([]models.Center, int, error)
	FindCenterByID(ctx context.Context, id string) (*models.Center, error)
	CreateCenter(ctx context.Context, center *models.Center) error
	UpdateCenter(ctx context.Context, center *models.Center) error
	DeleteCenter(ctx context.Context, id string) error
}

// SubnetRequest is the payload for creating or updating a subnet.
type SubnetRequest struct {
	Name                string  `json:"name" validate:"required"`
	Description         string  `json:"description"`
	CoordinatorCenterID *string `json:"coordinator_center_id"`
}

// CenterRequest is the payload for creating or updating a center.
type CenterRequest struct {
	Code     string            `json:"code" validate:"required"`
	Name     string            `json:"name" validate:"required"`
	Type     models.CenterType `json:"type" validate:"required,oneof=CIFP IES CPES"`
	Town     string            `json:"town"`
	SubnetID *string           `json:"subnet_id"`
}

// NetworkService manages the subnet and center topology of the network.
type NetworkService struct {
	repo      networkRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNetworkService creates a new network service.
func NewNetworkService(repo networkRepository, validate *validator.Validate, logger *zap.Logger) *NetworkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkService{repo: repo, validator: validate, logger: logger}
}

// ListSubnets returns every subnet.
func (s *NetworkService) ListSubnets(ctx context.Context) ([]models.Subnet, error) {
	subnets, err := s.repo.ListSubnets(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subnets")
	}
	return subnets, nil
}

// GetSubnet returns a subnet by ID.
func (s *NetworkService) GetSubnet(ctx context.Context, id string) (*models.Subnet, error) {
	subnet, err := s.repo.FindSubnetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subnet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subnet")
	}
	return subnet, nil
}

// CreateSubnet registers a new subnet. When a coordinator center is given it
// must exist and be a CIFP.
func (s *NetworkService) CreateSubnet(ctx context.Context, req SubnetRequest) (*models.Subnet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subnet payload")
	}
	if err := s.checkCoordinator(ctx, req.CoordinatorCenterID); err != nil {
		return nil, err
	}

	subnet := &models.Subnet{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		Description:         req.Description,
		CoordinatorCenterID: req.CoordinatorCenterID,
	}
	if err := s.repo.CreateSubnet(ctx, subnet); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create subnet")
	}
	return subnet, nil
}

// UpdateSubnet modifies a subnet.
func (s *NetworkService) UpdateSubnet(ctx context.Context, id string, req SubnetRequest) (*models.Subnet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subnet payload")
	}
	subnet, err := s.GetSubnet(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCoordinator(ctx, req.CoordinatorCenterID); err != nil {
		return nil, err
	}

	subnet.Name = req.Name
	subnet.Description = req.Description
	subnet.CoordinatorCenterID = req.CoordinatorCenterID
	if err := s.repo.UpdateSubnet(ctx, subnet); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update subnet")
	}
	return subnet, nil
}

// DeleteSubnet removes a subnet that no longer has centers attached.
func (s *NetworkService) DeleteSubnet(ctx context.Context, id string) error {
	if _, err := s.GetSubnet(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.CountCenters(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count centers")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "subnet still has centers attached")
	}

	if err := s.repo.DeleteSubnet(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete subnet")
	}
	return nil
}

// ListCenters returns paginated centers.
func (s *NetworkService) ListCenters(ctx context.Context, filter models.CenterFilter) ([]models.Center, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	centers, total, err := s.repo.ListCenters(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list centers")
	}
	return centers, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// GetCenter returns a center by ID.
func (s *NetworkService) GetCenter(ctx context.Context, id string) (*models.Center, error) {
	center, err := s.repo.FindCenterByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "center not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load center")
	}
	return center, nil
}

// CreateCenter registers a new center.
func (s *NetworkService) CreateCenter(ctx context.Context, req CenterRequest) (*models.Center, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid center payload")
	}
	if err := s.checkSubnet(ctx, req.SubnetID); err != nil {
		return nil, err
	}

	center := &models.Center{
		ID:       uuid.NewString(),
		Code:     req.Code,
		Name:     req.Name,
		Type:     req.Type,
		Town:     req.Town,
		SubnetID: req.SubnetID,
	}
	if err := s.repo.CreateCenter(ctx, center); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create center")
	}
	return center, nil
}

// UpdateCenter modifies a center.
func (s *NetworkService) UpdateCenter(ctx context.Context, id string, req CenterRequest) (*models.Center, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid center payload")
	}
	center, err := s.GetCenter(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkSubnet(ctx, req.SubnetID); err != nil {
		return nil, err
	}

	center.Code = req.Code
	center.Name = req.Name
	center.Type = req.Type
	center.Town = req.Town
	center.SubnetID = req.SubnetID
	if err := s.repo.UpdateCenter(ctx, center); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update center")
	}
	return center, nil
}

// DeleteCenter removes a center.
func (s *NetworkService) DeleteCenter(ctx context.Context, id string) error {
	if _, err := s.GetCenter(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteCenter(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete center")
	}
	return nil
}

func (s *NetworkService) checkCoordinator(ctx context.Context, centerID *string) error {
	if centerID == nil || *centerID == "" {
		return nil
	}
	center, err := s.GetCenter(ctx, *centerID)
	if err != nil {
		return err
	}
	if center.Type != models.CenterTypeCIFP {
		return appErrors.Clone(appErrors.ErrValidation, "only a CIFP can coordinate a subnet")
	}
	return nil
}

func (s *NetworkService) checkSubnet(ctx context.Context, subnetID *string) error {
	if subnetID == nil || *subnetID == "" {
		return nil
	}
	_, err := s.GetSubnet(ctx, *subnetID)
	return err
}
