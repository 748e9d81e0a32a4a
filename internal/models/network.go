package models

import "time"

// Subnet is a regional grouping of educational centers coordinated by a CIFP.
type Subnet struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Description         string    `db:"description" json:"description"`
	CoordinatorCenterID *string   `db:"coordinator_center_id" json:"coordinator_center_id,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// CenterType distinguishes coordinating CIFPs from member institutes.
type CenterType string

const (
	CenterTypeCIFP CenterType = "CIFP"
	CenterTypeIES  CenterType = "IES"
	CenterTypeCPES CenterType = "CPES"
)

// Center is an educational center belonging to a subnet.
type Center struct {
	ID        string     `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	Name      string     `db:"name" json:"name"`
	Type      CenterType `db:"type" json:"type"`
	Town      string     `db:"town" json:"town"`
	SubnetID  *string    `db:"subnet_id" json:"subnet_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// CenterFilter filters center listings.
type CenterFilter struct {
	SubnetID string
	Type     CenterType
	Search   string
	Page     int
	PageSize int
}
