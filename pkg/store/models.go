package store

import "time"

// Result is one stored result record.
type Result struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	RunID          string  `gorm:"not null;index" json:"run_id"`
	Timestamp      string  `gorm:"not null" json:"timestamp"`
	Test           string  `gorm:"not null;index:idx_results_test_backend" json:"test"`
	Backend        string  `gorm:"not null;index:idx_results_test_backend" json:"backend"`
	Result         string  `gorm:"not null;index" json:"result"`
	RuntimeSeconds float64 `json:"runtime"`
	StatusCode     int     `json:"status_code,omitempty"`
	Error          string  `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table name.
func (Result) TableName() string {
	return "results"
}

// ListFilter narrows ListResults. Zero fields match everything.
type ListFilter struct {
	Test    string
	Backend string
	Result  string
	Limit   int
}
