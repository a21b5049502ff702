package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is an append-only ledger entry for a single provider
// call. Records are never mutated or deleted by this service.
type UsageRecord struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	OrgID         uuid.UUID  `json:"org_id" db:"org_id"`
	RoleID        *uuid.UUID `json:"role_id,omitempty" db:"role_id"`
	ModelConfigID *uuid.UUID `json:"model_config_id,omitempty" db:"model_config_id"`
	Provider      string     `json:"provider" db:"provider"`
	ModelID       string     `json:"model_id" db:"model_id"`
	InputTokens   int64      `json:"input_tokens" db:"input_tokens"`
	OutputTokens  int64      `json:"output_tokens" db:"output_tokens"`
	TotalTokens   int64      `json:"total_tokens" db:"total_tokens"`
	CostCents     int64      `json:"cost_cents" db:"cost_cents"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the UsageRecord model
func (UsageRecord) TableName() string {
	return "token_usage"
}

// UsageTotals aggregates ledger entries for analytics responses.
type UsageTotals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CostCents    int64   `json:"cost_cents"`
	CostDollars  float64 `json:"cost_dollars"`
}
