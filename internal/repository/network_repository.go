package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

// NetworkRepository provides database access for subnets and centers.
type NetworkRepository struct {
	db *sqlx.DB
}

// NewNetworkRepository creates a new instance of NetworkRepository.
func NewNetworkRepository(db *sqlx.DB) *NetworkRepository {
	return &NetworkRepository{db: db}
}

const subnetColumns = `id, name, description, coordinator_center_id, created_at, updated_at`
const centerColumns = `id, code, name, type, town, subnet_id, created_at, updated_at`

// ListSubnets returns every subnet ordered by name.
func (r *NetworkRepository) ListSubnets(ctx context.Context) ([]models.Subnet, error) {
	query := fmt.Sprintf(`SELECT %s FROM subnets ORDER BY name ASC`, subnetColumns)
	var subnets []models.Subnet
	if err := r.db.SelectContext(ctx, &subnets, query); err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	return subnets, nil
}

// FindSubnetByID returns a subnet by identifier.
func (r *NetworkRepository) FindSubnetByID(ctx context.Context, id string) (*models.Subnet, error) {
	query := fmt.Sprintf(`SELECT %s FROM subnets WHERE id = $1 LIMIT 1`, subnetColumns)
	var subnet models.Subnet
	if err := r.db.GetContext(ctx, &subnet, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subnet by id: %w", err)
	}
	return &subnet, nil
}

// CreateSubnet inserts a new subnet.
func (r *NetworkRepository) CreateSubnet(ctx context.Context, subnet *models.Subnet) error {
	if subnet.ID == "" {
		subnet.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subnet.CreatedAt.IsZero() {
		subnet.CreatedAt = now
	}
	subnet.UpdatedAt = now
	const query = `INSERT INTO subnets (id, name, description, coordinator_center_id, created_at, updated_at) VALUES (:id, :name, :description, :coordinator_center_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subnet); err != nil {
		return fmt.Errorf("create subnet: %w", err)
	}
	return nil
}

// UpdateSubnet updates mutable fields of a subnet.
func (r *NetworkRepository) UpdateSubnet(ctx context.Context, subnet *models.Subnet) error {
	subnet.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subnets SET name = :name, description = :description, coordinator_center_id = :coordinator_center_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subnet); err != nil {
		return fmt.Errorf("update subnet: %w", err)
	}
	return nil
}

// CountCenters returns the number of centers attached to a subnet.
func (r *NetworkRepository) CountCenters(ctx context.Context, subnetID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM centers WHERE subnet_id = $1`, subnetID); err != nil {
		return 0, fmt.Errorf("count subnet centers: %w", err)
	}
	return count, nil
}

// DeleteSubnet removes a subnet.
func (r *NetworkRepository) DeleteSubnet(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subnets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subnet: %w", err)
	}
	return nil
}

// ListCenters returns centers based on filters with total count.
func (r *NetworkRepository) ListCenters(ctx context.Context, filter models.CenterFilter) ([]models.Center, int, error) {
	baseQuery := `FROM centers WHERE 1=1`
	var args []interface{}

	if filter.SubnetID != "" {
		baseQuery += fmt.Sprintf(" AND subnet_id = $%d", len(args)+1)
		args = append(args, filter.SubnetID)
	}
	if filter.Type != "" {
		baseQuery += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	if filter.Search != "" {
		baseQuery += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY name ASC LIMIT %d OFFSET %d", centerColumns, baseQuery, pageSize, (page-1)*pageSize)

	var centers []models.Center
	if err := r.db.SelectContext(ctx, &centers, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list centers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count centers: %w", err)
	}

	return centers, total, nil
}

// FindCenterByID returns a center by identifier.
func (r *NetworkRepository) FindCenterByID(ctx context.Context, id string) (*models.Center, error) {
	query := fmt.Sprintf(`SELECT %s FROM centers WHERE id = $1 LIMIT 1`, centerColumns)
	var center models.Center
	if err := r.db.GetContext(ctx, &center, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find center by id: %w", err)
	}
	return &center, nil
}

// CreateCenter inserts a new center.
func (r *NetworkRepository) CreateCenter(ctx context.Context, center *models.Center) error {
	if center.ID == "" {
		center.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if center.CreatedAt.IsZero() {
		center.CreatedAt = now
	}
	center.UpdatedAt = now
	const query = `INSERT INTO centers (id, code, name, type, town, subnet_id, created_at, updated_at) VALUES (:id, :code, :name, :type, :town, :subnet_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, center); err != nil {
		return fmt.Errorf("create center: %w", err)
	}
	return nil
}

// UpdateCenter updates mutable fields of a center.
func (r *NetworkRepository) UpdateCenter(ctx context.Context, center *models.Center) error {
	center.UpdatedAt = time.Now().UTC()
	const query = `UPDATE centers SET code = :code, name = :name, type = :type, town = :town, subnet_id = :subnet_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, center); err != nil {
		return fmt.Errorf("update center: %w", err)
	}
	return nil
}

// DeleteCenter removes a center.
func (r *NetworkRepository) DeleteCenter(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM centers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete center: %w", err)
	}
	return nil
}
