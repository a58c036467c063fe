package model

import "time"

// DemoAnswer is a precomputed response for a known demo question.
type DemoAnswer struct {
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Columns   []string  `json:"columns"`
	Rows      [][]any   `json:"rows"`
	RowCap    int       `json:"rowCap"`
	Truncated bool      `json:"truncated"`
	Warnings  []string  `json:"warnings,omitempty"`
	CachedAt  time.Time `json:"cachedAt"`
}
