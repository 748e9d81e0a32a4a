package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldKind enumerates the supported question kinds.
type FieldKind string

const (
	FieldKindShortText     FieldKind = "SHORT_TEXT"
	FieldKindLongText      FieldKind = "LONG_TEXT"
	FieldKindSingleSelect  FieldKind = "SINGLE_SELECT"
	FieldKindSingleChoice  FieldKind = "SINGLE_CHOICE"
	FieldKindMultiChoice   FieldKind = "MULTI_CHOICE"
	FieldKindDate          FieldKind = "DATE"
	FieldKindNumber        FieldKind = "NUMBER"
	FieldKindFileUpload    FieldKind = "FILE_UPLOAD"
	FieldKindSectionHeader FieldKind = "SECTION_HEADER"
)

// Enumerable reports whether the kind has a declared option set, which is a
// precondition for being a conditional rule source.
func (k FieldKind) Enumerable() bool {
	switch k {
	case FieldKindSingleSelect, FieldKindSingleChoice, FieldKindMultiChoice:
		return true
	default:
		return false
	}
}

// Valid reports whether the kind is one of the declared constants.
func (k FieldKind) Valid() bool {
	switch k {
	case FieldKindShortText, FieldKindLongText, FieldKindSingleSelect,
		FieldKindSingleChoice, FieldKindMultiChoice, FieldKindDate,
		FieldKindNumber, FieldKindFileUpload, FieldKindSectionHeader:
		return true
	default:
		return false
	}
}

// RuleOperator enumerates conditional rule comparison operators.
type RuleOperator string

const (
	RuleOperatorEquals      RuleOperator = "EQUALS"
	RuleOperatorNotEquals   RuleOperator = "NOT_EQUALS"
	RuleOperatorContains    RuleOperator = "CONTAINS"
	RuleOperatorNotContains RuleOperator = "NOT_CONTAINS"
)

// Valid reports whether the operator is known.
func (o RuleOperator) Valid() bool {
	switch o {
	case RuleOperatorEquals, RuleOperatorNotEquals, RuleOperatorContains, RuleOperatorNotContains:
		return true
	default:
		return false
	}
}

// ConditionalRule redirects navigation to a later field when the source
// field's current answer matches the comparison.
type ConditionalRule struct {
	SourceFieldID string       `json:"source_field_id"`
	Operator      RuleOperator `json:"operator"`
	Value         string       `json:"value"`
	TargetFieldID string       `json:"target_field_id"`
}

// Field is one prompt within a form. Kind-specific attributes are only
// populated for the kinds that use them.
type Field struct {
	ID       string `json:"id"`
	Kind     FieldKind `json:"kind"`
	Label    string `json:"label"`
	HelpText string `json:"help_text,omitempty"`
	Required bool   `json:"required"`

	// Choice kinds.
	Options []string `json:"options,omitempty"`

	// File-upload kind.
	AcceptedMIMEs    []string `json:"accepted_mimes,omitempty"`
	MaxFileSizeBytes int64    `json:"max_file_size_bytes,omitempty"`
	MaxFiles         int      `json:"max_files,omitempty"`

	// Section-header kind. Nested fields are not navigation targets.
	Children []Field `json:"children,omitempty"`

	Rules []ConditionalRule `json:"rules,omitempty"`
}

// FieldList is stored as a JSONB column.
type FieldList []Field

// Value implements driver.Valuer.
func (fl FieldList) Value() (driver.Value, error) {
	if fl == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(fl)
}

// Scan implements sql.Scanner.
func (fl *FieldList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*fl = nil
		return nil
	case []byte:
		return json.Unmarshal(v, fl)
	case string:
		return json.Unmarshal([]byte(v), fl)
	default:
		return fmt.Errorf("unsupported field list source type %T", src)
	}
}

// RoleList is a set of role identifiers stored as JSONB.
type RoleList []UserRole

// Value implements driver.Valuer.
func (rl RoleList) Value() (driver.Value, error) {
	if rl == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rl)
}

// Scan implements sql.Scanner.
func (rl *RoleList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*rl = nil
		return nil
	case []byte:
		return json.Unmarshal(v, rl)
	case string:
		return json.Unmarshal([]byte(v), rl)
	default:
		return fmt.Errorf("unsupported role list source type %T", src)
	}
}

// Contains reports whether the role is assigned.
func (rl RoleList) Contains(role UserRole) bool {
	for _, r := range rl {
		if r == role {
			return true
		}
	}
	return false
}

// FormStatus enumerates the form lifecycle states.
type FormStatus string

const (
	FormStatusDraft     FormStatus = "DRAFT"
	FormStatusPublished FormStatus = "PUBLISHED"
	FormStatusClosed    FormStatus = "CLOSED"
)

// Form is an authored, versioned collection of fields with lifecycle status
// and role assignment. Field order is meaningful: it determines default
// navigation and the "after current field" set for conditional targets.
type Form struct {
	ID                     string     `db:"id" json:"id"`
	Title                  string     `db:"title" json:"title"`
	Description            string     `db:"description" json:"description"`
	Fields                 FieldList  `db:"fields" json:"fields"`
	AssignedRoles          RoleList   `db:"assigned_roles" json:"assigned_roles"`
	Status                 FormStatus `db:"status" json:"status"`
	AcceptingResponses     bool       `db:"accepting_responses" json:"accepting_responses"`
	AllowMultipleResponses bool       `db:"allow_multiple_responses" json:"allow_multiple_responses"`
	AllowModification      bool       `db:"allow_modification" json:"allow_modification"`
	AcademicYearID         string     `db:"academic_year_id" json:"academic_year_id"`
	CreatedBy              string     `db:"created_by" json:"created_by"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// FieldIndex returns the position of a top-level field, or -1 when absent.
// Nested fields inside section headers are deliberately not addressable here.
func (f *Form) FieldIndex(fieldID string) int {
	for i, field := range f.Fields {
		if field.ID == fieldID {
			return i
		}
	}
	return -1
}

// FieldByID returns the top-level field with the given id.
func (f *Form) FieldByID(fieldID string) *Field {
	if idx := f.FieldIndex(fieldID); idx >= 0 {
		return &f.Fields[idx]
	}
	return nil
}

// FormFilter captures filtering criteria for listing forms.
type FormFilter struct {
	AcademicYearID string
	Status         FormStatus
	Role           UserRole
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
