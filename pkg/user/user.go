// Package user stores the global user directory. Users are not tenant-owned;
// their visibility of everything else is mediated by memberships.
package user

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated principal.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateRequest is the JSON body for POST /api/v1/users.
type CreateRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required,min=1"`
}
