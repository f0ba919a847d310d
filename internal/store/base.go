package store

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel holds the fields common to every database-backed record.
type BaseModel struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenNewID generates a new time-ordered UUID for a fresh record.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
