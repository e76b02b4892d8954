package model

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// DefectType is the kind of road surface problem being reported.
type DefectType string

const (
	TypePothole       DefectType = "pothole"
	TypeCrack         DefectType = "crack"
	TypeSurfaceDamage DefectType = "surface_damage"
	TypeEdgeDamage    DefectType = "edge_damage"
	TypeDrainageIssue DefectType = "drainage_issue"
	TypeOther         DefectType = "other"
)

// ValidDefectTypes are the accepted defect type values.
var ValidDefectTypes = map[DefectType]bool{
	TypePothole:       true,
	TypeCrack:         true,
	TypeSurfaceDamage: true,
	TypeEdgeDamage:    true,
	TypeDrainageIssue: true,
	TypeOther:         true,
}

// Severity is the depth-derived tier of a defect.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Depth boundaries in centimeters, inclusive on the lower end.
const (
	CriticalDepthCm = 10.0
	HighDepthCm     = 6.0
	ModerateDepthCm = 3.0
)

// ValidSeverities are the accepted severity values (used by list filters).
var ValidSeverities = map[Severity]bool{
	SeverityLow:      true,
	SeverityModerate: true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// ClassifySeverity maps a measured depth to its severity tier.
// Negative depths are rejected upstream by input validation.
func ClassifySeverity(depthCm float64) Severity {
	switch {
	case depthCm >= CriticalDepthCm:
		return SeverityCritical
	case depthCm >= HighDepthCm:
		return SeverityHigh
	case depthCm >= ModerateDepthCm:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// Multiplier is the priority multiplier applied to the reporter weight.
func (s Severity) Multiplier() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityModerate:
		return 2
	default:
		return 1
	}
}

// MaxAddressLength is the column width of defect_reports.address, in
// characters.
const MaxAddressLength = 255

// Location is where the defect was observed.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// ClampAddress cuts addr to MaxAddressLength characters without splitting
// a UTF-8 sequence.
func ClampAddress(addr string) string {
	if utf8.RuneCountInString(addr) <= MaxAddressLength {
		return addr
	}
	n := 0
	for i := range addr {
		if n == MaxAddressLength {
			return strings.TrimSpace(addr[:i])
		}
		n++
	}
	return addr
}

// Dimensions of a defect in centimeters. Surface is always Length*Width;
// build values with NewDimensions.
type Dimensions struct {
	Length  float64 `json:"length"`
	Width   float64 `json:"width"`
	Depth   float64 `json:"depth"`
	Surface float64 `json:"surface"`
}

// NewDimensions returns dimensions with the surface derived from length and width.
func NewDimensions(length, width, depth float64) Dimensions {
	return Dimensions{
		Length:  length,
		Width:   width,
		Depth:   depth,
		Surface: length * width,
	}
}

// DefectReport is one observed road defect with its consensus state.
type DefectReport struct {
	ID          string       `json:"id"`
	Location    Location     `json:"location"`
	Dimensions  Dimensions   `json:"dimensions"`
	Type        DefectType   `json:"type"`
	Severity    Severity     `json:"severity"`
	Description string       `json:"description"`
	Photos      []string     `json:"photos,omitempty"`
	ReportedBy  string       `json:"reportedBy"`
	ReportedAt  time.Time    `json:"reportedAt"`
	Validations []string     `json:"validations"`
	Score       float64      `json:"score"`
	Status      DefectStatus `json:"status"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Resize replaces the dimensions and re-derives surface and severity.
// The score is left untouched.
func (d *DefectReport) Resize(length, width, depth float64) {
	d.Dimensions = NewDimensions(length, width, depth)
	d.Severity = ClassifySeverity(depth)
}

// HasValidator reports whether userID already validated the report.
func (d *DefectReport) HasValidator(userID string) bool {
	return slices.Contains(d.Validations, userID)
}

// Clone returns a copy that shares no slices with d.
func (d *DefectReport) Clone() *DefectReport {
	c := *d
	c.Validations = slices.Clone(d.Validations)
	c.Photos = slices.Clone(d.Photos)
	return &c
}

// CreateDefectRequest is the API request body for a new report.
type CreateDefectRequest struct {
	Latitude    *float64 `json:"latitude" validate:"required,lat"`
	Longitude   *float64 `json:"longitude" validate:"required,lng"`
	Address     string   `json:"address,omitempty" validate:"max=255"`
	Length      *float64 `json:"length" validate:"required,gte=0,lte=10000"`
	Width       *float64 `json:"width" validate:"required,gte=0,lte=10000"`
	Depth       *float64 `json:"depth" validate:"required,gte=0,lte=1000"`
	Type        string   `json:"type" validate:"required"`
	Description string   `json:"description" validate:"max=2000"`
	Photos      []string `json:"photos,omitempty" validate:"max=5,dive,url,max=512"`
}

// ResizeDefectRequest is the API request body for a dimension update.
type ResizeDefectRequest struct {
	Length *float64 `json:"length" validate:"required,gte=0,lte=10000"`
	Width  *float64 `json:"width" validate:"required,gte=0,lte=10000"`
	Depth  *float64 `json:"depth" validate:"required,gte=0,lte=1000"`
}

// StatusChangeRequest is the API request body for an administrative transition.
type StatusChangeRequest struct {
	Status string `json:"status" validate:"required"`
}

// DefectFilter narrows a defect listing.
type DefectFilter struct {
	Statuses   []DefectStatus
	Severities []Severity
	Types      []DefectType
	SortBy     string // "recent" (default) or "priority"
	Page       int
	Limit      int
}

// Sort orders accepted by DefectFilter.SortBy.
const (
	SortRecent   = "recent"
	SortPriority = "priority"
)

// DefectListResponse is the API response for a paged listing.
type DefectListResponse struct {
	Defects []DefectReport `json:"defects"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Total   int64          `json:"total"`
}

// RankedDefect is one entry of the priority ranking.
type RankedDefect struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// StatsResponse is the API response for global statistics.
type StatsResponse struct {
	TotalDefects     int                  `json:"totalDefects"`
	TotalValidations int                  `json:"totalValidations"`
	TotalUsers       int                  `json:"totalUsers"`
	ByStatus         map[DefectStatus]int `json:"byStatus"`
	BySeverity       map[Severity]int     `json:"bySeverity"`
}

// SyncDeltaResponse is the API response for a delta sync. Consecutive
// responses may repeat a report; clients keep the latest copy per id.
type SyncDeltaResponse struct {
	Defects       []DefectReport `json:"defects"`
	SyncTimestamp string         `json:"syncTimestamp"`
	HasMore       bool           `json:"hasMore"`
}
