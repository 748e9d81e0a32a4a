package dto

import "time"

// FieldBreakdown aggregates submitted answers for one enumerable field.
type FieldBreakdown struct {
	FieldID string         `json:"field_id"`
	Label   string         `json:"label"`
	Kind    string         `json:"kind"`
	Counts  map[string]int `json:"counts"`
}

// FormDashboardResponse summarises one form's response activity.
type FormDashboardResponse struct {
	FormID         string           `json:"form_id"`
	Title          string           `json:"title"`
	TotalSubmitted int              `json:"total_submitted"`
	TotalDrafts    int              `json:"total_drafts"`
	TotalRevisions int              `json:"total_revisions"`
	ByRole         map[string]int   `json:"by_role"`
	Fields         []FieldBreakdown `json:"fields"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// FormStatusCount pairs a lifecycle status with its form count.
type FormStatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// OverviewDashboardResponse summarises activity for an academic year.
type OverviewDashboardResponse struct {
	AcademicYearID string            `json:"academic_year_id"`
	Forms          []FormStatusCount `json:"forms"`
	TotalResponses int               `json:"total_responses"`
	GeneratedAt    time.Time         `json:"generated_at"`
}
