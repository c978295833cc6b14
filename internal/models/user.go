// Package models provides data models for the opportunity scanner system.
package models

import (
	"time"

	"github.com/opportunity-scanner/internal/types"
)

// User represents a user in the system
type User struct {
	ID        string         `json:"id" db:"id"`
	Email     string         `json:"email" db:"email"`
	Tier      types.UserTier `json:"tier" db:"tier"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" db:"updated_at"`
}
