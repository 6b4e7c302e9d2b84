package directory

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
}

type DepartmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
}

type DoctorRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
}

type PatientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}
