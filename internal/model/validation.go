package model

import "time"

// Validation is a peer endorsement of a defect report.
type Validation struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	UserID    string    `json:"userId"`
	Weight    int       `json:"weight"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidationResponse is the API response after a successful validation.
type ValidationResponse struct {
	Success  bool         `json:"success"`
	NewScore float64      `json:"newScore"`
	Status   DefectStatus `json:"status"`
	Weight   int          `json:"weight"`
}
