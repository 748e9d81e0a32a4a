package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ResponseStatus enumerates response session states.
type ResponseStatus string

const (
	ResponseStatusDraft     ResponseStatus = "DRAFT"
	ResponseStatusSubmitted ResponseStatus = "SUBMITTED"
)

// FileAttachment is an uploaded file encoded inline for storage inside an
// answer value. Encoding happens at the API boundary; this subsystem only
// stores the result.
type FileAttachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	InlineData string    `json:"inline_data"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AnswerValue is a tagged union keyed by the field's declared kind. Exactly
// one variant is meaningful for a given kind; readers switch on Kind.
type AnswerValue struct {
	Kind       FieldKind        `json:"kind"`
	Text       string           `json:"text,omitempty"`
	Selections []string         `json:"selections,omitempty"`
	Checked    bool             `json:"checked,omitempty"`
	Files      []FileAttachment `json:"files,omitempty"`
}

// Scalar returns the answer as a single comparison string. Multi-choice
// answers have no scalar form and return the empty string.
func (a AnswerValue) Scalar() string {
	switch a.Kind {
	case FieldKindMultiChoice:
		return ""
	case FieldKindSingleSelect, FieldKindSingleChoice:
		if len(a.Selections) > 0 {
			return a.Selections[0]
		}
		return a.Text
	default:
		return a.Text
	}
}

// Set returns the answer as a membership set. Scalar answers yield a
// single-element set when non-empty.
func (a AnswerValue) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(a.Selections))
	for _, s := range a.Selections {
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		if scalar := a.Scalar(); scalar != "" {
			set[scalar] = struct{}{}
		}
	}
	return set
}

// Empty reports whether the answer carries no value for its kind.
func (a AnswerValue) Empty() bool {
	switch a.Kind {
	case FieldKindMultiChoice, FieldKindSingleSelect, FieldKindSingleChoice:
		return len(a.Selections) == 0 && a.Text == ""
	case FieldKindFileUpload:
		return len(a.Files) == 0
	default:
		return a.Text == ""
	}
}

// AnswerSet maps field id to answer value, stored as a JSONB column.
type AnswerSet map[string]AnswerValue

// Value implements driver.Valuer.
func (as AnswerSet) Value() (driver.Value, error) {
	if as == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(as)
}

// Scan implements sql.Scanner.
func (as *AnswerSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*as = nil
		return nil
	case []byte:
		return json.Unmarshal(v, as)
	case string:
		return json.Unmarshal([]byte(v), as)
	default:
		return fmt.Errorf("unsupported answer set source type %T", src)
	}
}

// ResponseSession is one respondent's answer set for one form. Respondent
// name and role are denormalised for display without a join.
type ResponseSession struct {
	ID                 string         `db:"id" json:"id"`
	FormID             string         `db:"form_id" json:"form_id"`
	UserID             string         `db:"user_id" json:"user_id"`
	UserName           string         `db:"user_name" json:"user_name"`
	UserRole           UserRole       `db:"user_role" json:"user_role"`
	AcademicYearID     string         `db:"academic_year_id" json:"academic_year_id"`
	Answers            AnswerSet      `db:"answers" json:"answers"`
	Status             ResponseStatus `db:"status" json:"status"`
	Version            int            `db:"version" json:"version"`
	IsModification     bool           `db:"is_modification" json:"is_modification"`
	OriginalResponseID *string        `db:"original_response_id" json:"original_response_id,omitempty"`
	Superseded         bool           `db:"superseded" json:"superseded"`
	RespondedAt        time.Time      `db:"responded_at" json:"responded_at"`
	LastModifiedAt     time.Time      `db:"last_modified_at" json:"last_modified_at"`
	SubmittedAt        *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
}

// ChainRootID returns the id of the first submission in this session's
// revision chain.
func (r *ResponseSession) ChainRootID() string {
	if r.OriginalResponseID != nil && *r.OriginalResponseID != "" {
		return *r.OriginalResponseID
	}
	return r.ID
}
