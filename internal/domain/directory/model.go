package directory

import (
	"time"

	"github.com/google/uuid"
)

// Hospital is a care facility patients book into.
type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   *string   `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Department is a unit within a hospital. Names are unique per hospital.
type Department struct {
	ID         uuid.UUID `db:"id" json:"id"`
	HospitalID uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor practices in one department of one hospital. IsAvailable tracks
// whether the doctor can take a new assignment right now.
type Doctor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	HospitalID   uuid.UUID `db:"hospital_id" json:"hospital_id"`
	DepartmentID uuid.UUID `db:"department_id" json:"department_id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        *string   `db:"email" json:"email,omitempty"`
	IsAvailable  bool      `db:"is_available" json:"is_available"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Patient is a bookable account holder.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
