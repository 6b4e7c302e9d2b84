package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/domain/directory"
	"github.com/caresync/caresync/internal/platform/apperr"
	"github.com/caresync/caresync/internal/platform/auth"
)

// Directory is the read-side lookup surface the workflow needs.
// *directory.Service satisfies it.
type Directory interface {
	Hospital(ctx context.Context, id uuid.UUID) (*directory.Hospital, error)
	Department(ctx context.Context, id uuid.UUID) (*directory.Department, error)
	Doctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	Patient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
	SetDoctorAvailability(ctx context.Context, id uuid.UUID, available bool) error
}

// Notifier delivers user-facing side effects. Both methods are
// fire-and-forget: they never block the mutation and their failures never
// surface to the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, body string, data map[string]interface{})
	Email(to, subject, body string)
}

// TxRunner executes fn inside a storage transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn without a transaction, for tests and in-memory setups.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service implements the appointment workflow.
type Service struct {
	repo     Repository
	history  HistoryRepository
	dir      Directory
	queue    *QueueBroadcaster
	notifier Notifier
	tx       TxRunner
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, history HistoryRepository, dir Directory, queue *QueueBroadcaster, notifier Notifier, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		history:  history,
		dir:      dir,
		queue:    queue,
		notifier: notifier,
		tx:       tx,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// Create books a new appointment for the calling patient. Precondition order
// matters: time validity, slot availability, then the single-open-appointment
// rule, then directory existence.
func (s *Service) Create(ctx context.Context, p *auth.Principal, req CreateRequest) (*Appointment, error) {
	if p.PatientID == nil {
		return nil, apperr.Forbidden("account has no patient affiliation")
	}
	if req.HospitalID == uuid.Nil || req.DepartmentID == uuid.Nil {
		return nil, apperr.Validation("hospital_id and department_id are required")
	}
	if req.ScheduledTime.IsZero() {
		return nil, apperr.Validation("scheduled_time is required")
	}
	if !req.ScheduledTime.After(s.now()) {
		return nil, apperr.Validation("scheduled_time must be in the future")
	}

	patient, err := s.dir.Patient(ctx, *p.PatientID)
	if err != nil {
		return nil, err
	}

	taken, err := s.repo.ExistsAtSlot(ctx, req.HospitalID, req.ScheduledTime)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return nil, apperr.Conflict("slot is already booked at this hospital")
	}

	open, err := s.repo.HasOpenForPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("check open appointments: %w", err)
	}
	if open {
		return nil, apperr.Conflict("patient already has an open appointment")
	}

	hospital, err := s.dir.Hospital(ctx, req.HospitalID)
	if err != nil {
		return nil, err
	}
	dept, err := s.dir.Department(ctx, req.DepartmentID)
	if err != nil {
		return nil, err
	}
	if dept.HospitalID != hospital.ID {
		return nil, apperr.Validation("department does not belong to this hospital")
	}

	a := &Appointment{
		PatientID:     patient.ID,
		HospitalID:    hospital.ID,
		DepartmentID:  dept.ID,
		Note:          req.Note,
		ScheduledTime: req.ScheduledTime,
		Status:        StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.queue.Broadcast(ctx, a.HospitalID)
	when := a.ScheduledTime.Format(time.RFC1123)
	s.notifier.Notify(ctx, patient.ID, "Appointment Booked",
		fmt.Sprintf("Your appointment at %s is booked for %s.", hospital.Name, when),
		map[string]interface{}{"appointment_id": a.ID.String()})
	s.notifier.Notify(ctx, hospital.ID, "New Appointment",
		fmt.Sprintf("%s booked an appointment for %s.", patient.FullName, when),
		map[string]interface{}{"appointment_id": a.ID.String()})
	if patient.Email != nil {
		s.notifier.Email(*patient.Email, "Appointment Confirmation",
			fmt.Sprintf("<p>Dear %s,</p><p>Your appointment at %s is confirmed for %s.</p>",
				patient.FullName, hospital.Name, when))
	}

	return a, nil
}

// Get returns a single appointment, subject to the caller's read scope.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(p, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns appointments within the caller's scope. Caller-supplied
// filters are narrowed, never widened, by the access policy.
func (s *Service) List(ctx context.Context, p *auth.Principal, f ListFilter) ([]*Appointment, int, error) {
	if f.Status != nil && !validStatuses[*f.Status] {
		return nil, 0, apperr.Validation("invalid status %q", *f.Status)
	}
	if err := applyReadScope(p, &f); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return items, total, nil
}

// Cancel marks an appointment canceled, freeing its slot. Only the owning
// patient may cancel, and canceling twice is a conflict.
func (s *Service) Cancel(ctx context.Context, p *auth.Principal, id uuid.UUID, reason *string) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCanceled {
		return nil, apperr.Conflict("appointment is already canceled")
	}
	if err := authorizeOwnerPatient(p, a); err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(StatusCanceled) {
		return nil, apperr.Conflict("a %s appointment cannot be canceled", a.Status)
	}

	wasInProgress := a.Status == StatusInProgress
	a.Status = StatusCanceled
	a.CancellationReason = reason
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	if wasInProgress && a.DoctorID != nil {
		s.releaseDoctor(ctx, *a.DoctorID)
	}

	s.queue.Broadcast(ctx, a.HospitalID)
	s.notifier.Notify(ctx, a.HospitalID, "Appointment Canceled",
		fmt.Sprintf("The appointment for %s was canceled.", a.ScheduledTime.Format(time.RFC1123)),
		map[string]interface{}{"appointment_id": a.ID.String()})
	if patient, err := s.dir.Patient(ctx, a.PatientID); err == nil && patient.Email != nil {
		s.notifier.Email(*patient.Email, "Appointment Canceled",
			fmt.Sprintf("<p>Dear %s,</p><p>Your appointment for %s has been canceled.</p>",
				patient.FullName, a.ScheduledTime.Format(time.RFC1123)))
	}

	return a, nil
}

// UpdateStatus moves an appointment through its lifecycle. Cancellation and
// rescheduling have dedicated operations with their own rules and are not
// reachable from here.
func (s *Service) UpdateStatus(ctx context.Context, p *auth.Principal, id uuid.UUID, next Status) (*Appointment, error) {
	if !validStatuses[next] {
		return nil, apperr.Validation("invalid status %q", next)
	}
	if next == StatusCanceled || next == StatusRescheduled {
		return nil, apperr.Validation("use the cancel or reschedule operation for status %s", next)
	}

	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeStatusChange(p, a); err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(next) {
		return nil, apperr.Conflict("cannot move a %s appointment to %s", a.Status, next)
	}

	wasInProgress := a.Status == StatusInProgress
	now := s.now()
	switch next {
	case StatusInProgress:
		a.CheckInTime = &now
		if a.DoctorID != nil {
			if err := s.dir.SetDoctorAvailability(ctx, *a.DoctorID, false); err != nil {
				return nil, err
			}
		}
	case StatusCompleted:
		a.CompletedTime = &now
	}
	a.Status = next

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if wasInProgress && next == StatusCompleted && a.DoctorID != nil {
		s.releaseDoctor(ctx, *a.DoctorID)
	}

	s.queue.Broadcast(ctx, a.HospitalID)
	return a, nil
}

// Reschedule moves an appointment to a new future slot, writing exactly one
// audit row. The audit append and the appointment update commit together.
func (s *Service) Reschedule(ctx context.Context, p *auth.Principal, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeScheduleChange(p, a); err != nil {
		return nil, err
	}
	if req.NewTime.IsZero() {
		return nil, apperr.Validation("new_time is required")
	}
	if !req.NewTime.After(s.now()) {
		return nil, apperr.Validation("new_time must be in the future")
	}
	if len(req.Reason) > 255 {
		return nil, apperr.Validation("reason must be at most 255 characters")
	}
	if req.NewTime.Equal(a.ScheduledTime) {
		return nil, apperr.Validation("new_time matches the current slot")
	}
	if !a.Status.CanTransitionTo(StatusRescheduled) {
		return nil, apperr.Conflict("a %s appointment cannot be rescheduled", a.Status)
	}

	taken, err := s.repo.ExistsAtSlot(ctx, a.HospitalID, req.NewTime)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return nil, apperr.Conflict("slot is already booked at this hospital")
	}

	oldTime := a.ScheduledTime
	err = s.tx(ctx, func(ctx context.Context) error {
		entry := &RescheduleEntry{
			AppointmentID: a.ID,
			OldTime:       oldTime,
			NewTime:       req.NewTime,
			Reason:        req.Reason,
			RescheduledBy: p.UserID,
		}
		if err := s.history.Append(ctx, entry); err != nil {
			return fmt.Errorf("append reschedule history: %w", err)
		}

		a.ScheduledTime = req.NewTime
		a.RescheduledFrom = &oldTime
		a.Status = StatusRescheduled
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.queue.Broadcast(ctx, a.HospitalID)
	when := a.ScheduledTime.Format(time.RFC1123)
	s.notifier.Notify(ctx, a.PatientID, "Appointment Rescheduled",
		fmt.Sprintf("Your appointment was moved to %s.", when),
		map[string]interface{}{"appointment_id": a.ID.String(), "new_time": a.ScheduledTime.Format(time.RFC3339)})
	if patient, err := s.dir.Patient(ctx, a.PatientID); err == nil && patient.Email != nil {
		s.notifier.Email(*patient.Email, "Appointment Rescheduled",
			fmt.Sprintf("<p>Dear %s,</p><p>Your appointment has been moved to %s.</p>",
				patient.FullName, when))
	}

	return a, nil
}

// AssignDoctor attaches an available doctor from the same hospital.
func (s *Service) AssignDoctor(ctx context.Context, p *auth.Principal, id, doctorID uuid.UUID) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeScheduleChange(p, a); err != nil {
		return nil, err
	}
	if a.Status == StatusCompleted || a.Status == StatusCanceled {
		return nil, apperr.Conflict("cannot assign a doctor to a %s appointment", a.Status)
	}

	doctor, err := s.dir.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.HospitalID != a.HospitalID {
		return nil, apperr.Forbidden("doctor does not belong to this hospital")
	}
	if !doctor.IsAvailable {
		return nil, apperr.Conflict("doctor is not available")
	}

	a.DoctorID = &doctor.ID
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("assign doctor: %w", err)
	}

	s.notifier.Notify(ctx, doctor.ID, "Appointment Assigned",
		fmt.Sprintf("You were assigned an appointment for %s.", a.ScheduledTime.Format(time.RFC1123)),
		map[string]interface{}{"appointment_id": a.ID.String()})
	s.notifier.Notify(ctx, a.PatientID, "Doctor Assigned",
		fmt.Sprintf("%s will see you at your appointment.", doctor.FullName),
		map[string]interface{}{"appointment_id": a.ID.String()})

	return a, nil
}

// Delete removes an appointment outright. Owner patient only.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeOwnerPatient(p, a); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	s.queue.Broadcast(ctx, a.HospitalID)
	return nil
}

// History returns the reschedule audit trail, subject to read scope.
func (s *Service) History(ctx context.Context, p *auth.Principal, id uuid.UUID) ([]*RescheduleEntry, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(p, a); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByAppointment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list reschedule history: %w", err)
	}
	return entries, nil
}

// Queue exposes the live queue snapshot for the websocket handler.
func (s *Service) Queue(ctx context.Context, hospitalID uuid.UUID) (*QueueEvent, error) {
	return s.queue.Event(ctx, hospitalID)
}

func (s *Service) releaseDoctor(ctx context.Context, doctorID uuid.UUID) {
	if err := s.dir.SetDoctorAvailability(ctx, doctorID, true); err != nil {
		s.logger.Error().Err(err).Str("doctor_id", doctorID.String()).Msg("failed to release doctor")
	}
}
