package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the appointment store.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Appointment, int, error)

	// ListQueue returns the hospital's non-canceled appointments ordered by
	// scheduled time ascending.
	ListQueue(ctx context.Context, hospitalID uuid.UUID) ([]*Appointment, error)

	// ExistsAtSlot reports whether a non-canceled appointment occupies the
	// exact timestamp at the hospital.
	ExistsAtSlot(ctx context.Context, hospitalID uuid.UUID, t time.Time) (bool, error)

	// HasOpenForPatient reports whether the patient has any appointment that
	// is neither completed nor canceled.
	HasOpenForPatient(ctx context.Context, patientID uuid.UUID) (bool, error)
}

// HistoryRepository is the append-only reschedule audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, e *RescheduleEntry) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*RescheduleEntry, error)
}
