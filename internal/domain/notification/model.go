package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a persisted in-app message for one user. UserID is the
// directory identity the message targets (a patient, doctor or hospital id).
type Notification struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	UserID    uuid.UUID              `db:"user_id" json:"user_id"`
	Title     string                 `db:"title" json:"title"`
	Body      string                 `db:"body" json:"body"`
	Data      map[string]interface{} `db:"data" json:"data,omitempty"`
	IsRead    bool                   `db:"is_read" json:"is_read"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
