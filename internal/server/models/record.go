// Package models defines server-side data models persisted by the gateways.
package models

import "time"

// Record is one catalog document. Fields holds every scalar value and the
// resolved URL of every file field, keyed by field name.
type Record struct {
	ID         string         `json:"id" dynamodbav:"id"`
	Collection string         `json:"collection" dynamodbav:"-"`
	Fields     map[string]any `json:"fields" dynamodbav:"fields"`
	CreatedAt  time.Time      `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" dynamodbav:"updated_at"`
}
