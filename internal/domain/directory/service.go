package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caresync/caresync/internal/platform/apperr"
)

// Service is the read-side lookup collaborator over hospitals, departments,
// doctors and patients. It has no HTTP surface of its own; the appointment
// workflow uses it for preconditions and display names.
type Service struct {
	hospitals   HospitalRepository
	departments DepartmentRepository
	doctors     DoctorRepository
	patients    PatientRepository
}

func NewService(hospitals HospitalRepository, departments DepartmentRepository, doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{hospitals: hospitals, departments: departments, doctors: doctors, patients: patients}
}

func (s *Service) Hospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("hospital %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return h, nil
}

func (s *Service) Department(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := s.departments.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("department %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get department: %w", err)
	}
	return d, nil
}

func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

func (s *Service) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

// SetDoctorAvailability flips the availability flag. Used by the appointment
// workflow when a doctor enters or leaves an in-progress consultation.
func (s *Service) SetDoctorAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	if err := s.doctors.SetAvailability(ctx, id, available); err != nil {
		return fmt.Errorf("set doctor availability: %w", err)
	}
	return nil
}
