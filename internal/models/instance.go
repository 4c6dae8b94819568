// Package models defines data structures used throughout the application.
package models

import (
	"database/sql"
	"time"
)

type InstanceState string

const (
	InstanceStateDisconnected InstanceState = "disconnected"
	InstanceStateAwaitingAuth InstanceState = "awaiting_auth"
	InstanceStateConnected    InstanceState = "connected"
)

// Instance is one account binding to the messaging gateway.
type Instance struct {
	ID             string        `db:"id" json:"id"`
	APIToken       string        `db:"api_token" json:"-"`
	BaseURL        string        `db:"base_url" json:"base_url"`
	State          InstanceState `db:"state" json:"state"`
	Enabled        bool          `db:"enabled" json:"enabled"`
	Suspended      bool          `db:"suspended" json:"suspended"`
	BackoffLevel   int           `db:"backoff_level" json:"backoff_level"`
	NextEligibleAt sql.NullTime  `db:"next_eligible_at" json:"next_eligible_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// IsConnected reports whether the gateway considers the instance authorized.
func (i *Instance) IsConnected() bool {
	return i.State == InstanceStateConnected
}
