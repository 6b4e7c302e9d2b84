package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caresync/caresync/internal/platform/apperr"
)

type mockHospitalRepo struct{ hospitals map[uuid.UUID]*Hospital }

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.hospitals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return h, nil
}

type mockDepartmentRepo struct{ departments map[uuid.UUID]*Department }

func (m *mockDepartmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

type mockDoctorRepo struct{ doctors map[uuid.UUID]*Doctor }

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (m *mockDoctorRepo) SetAvailability(_ context.Context, id uuid.UUID, available bool) error {
	if d, ok := m.doctors[id]; ok {
		d.IsAvailable = available
	}
	return nil
}

type mockPatientRepo struct{ patients map[uuid.UUID]*Patient }

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func newTestService() (*Service, *mockDoctorRepo) {
	doctors := &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
	return NewService(
		&mockHospitalRepo{hospitals: make(map[uuid.UUID]*Hospital)},
		&mockDepartmentRepo{departments: make(map[uuid.UUID]*Department)},
		doctors,
		&mockPatientRepo{patients: make(map[uuid.UUID]*Patient)},
	), doctors
}

func TestService_DoctorNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Doctor(context.Background(), uuid.New())
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestService_DoctorFound(t *testing.T) {
	svc, doctors := newTestService()
	id := uuid.New()
	doctors.doctors[id] = &Doctor{ID: id, FullName: "Dr. Asare", IsAvailable: true}

	d, err := svc.Doctor(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.FullName != "Dr. Asare" {
		t.Errorf("unexpected doctor %+v", d)
	}
}

func TestService_SetDoctorAvailability(t *testing.T) {
	svc, doctors := newTestService()
	id := uuid.New()
	doctors.doctors[id] = &Doctor{ID: id, IsAvailable: true}

	if err := svc.SetDoctorAvailability(context.Background(), id, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doctors.doctors[id].IsAvailable {
		t.Error("expected doctor to be unavailable")
	}
}

func TestService_HospitalNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Hospital(context.Background(), uuid.New())
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
