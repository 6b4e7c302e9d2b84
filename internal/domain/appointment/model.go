package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCanceled    Status = "CANCELED"
	StatusRescheduled Status = "RESCHEDULED"
)

var validStatuses = map[Status]bool{
	StatusPending:     true,
	StatusInProgress:  true,
	StatusCompleted:   true,
	StatusCanceled:    true,
	StatusRescheduled: true,
}

// statusTransitions is the authoritative state machine. RESCHEDULED re-opens
// the appointment and moves forward exactly like PENDING; COMPLETED and
// CANCELED are terminal.
var statusTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress:  true,
		StatusCompleted:   true,
		StatusCanceled:    true,
		StatusRescheduled: true,
	},
	StatusRescheduled: {
		StatusInProgress:  true,
		StatusCompleted:   true,
		StatusCanceled:    true,
		StatusRescheduled: true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusCanceled:  true,
	},
	StatusCompleted: {},
	StatusCanceled:  {},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	return statusTransitions[s][next]
}

// Appointment is a booked slot at a hospital.
type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	HospitalID         uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	DepartmentID       uuid.UUID  `db:"department_id" json:"department_id"`
	DoctorID           *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	Note               *string    `db:"appointment_note" json:"appointment_note,omitempty"`
	ScheduledTime      time.Time  `db:"scheduled_time" json:"scheduled_time"`
	CheckInTime        *time.Time `db:"check_in_time" json:"check_in_time,omitempty"`
	CompletedTime      *time.Time `db:"completed_time" json:"completed_time,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Status             Status     `db:"status" json:"status"`
	RescheduledFrom    *time.Time `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// RescheduleEntry is one row of the append-only reschedule audit trail.
type RescheduleEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	OldTime       time.Time `db:"old_time" json:"old_time"`
	NewTime       time.Time `db:"new_time" json:"new_time"`
	Reason        string    `db:"reason" json:"reason"`
	RescheduledBy uuid.UUID `db:"rescheduled_by" json:"rescheduled_by"`
	RescheduledAt time.Time `db:"rescheduled_at" json:"rescheduled_at"`
}

// CreateRequest is the booking payload. The patient comes from the caller's
// token, never from the body.
type CreateRequest struct {
	HospitalID    uuid.UUID `json:"hospital_id"`
	DepartmentID  uuid.UUID `json:"department_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Note          *string   `json:"appointment_note,omitempty"`
}

// CancelRequest carries the optional cancellation reason.
type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// StatusRequest updates the lifecycle state.
type StatusRequest struct {
	Status Status `json:"status"`
}

// RescheduleRequest moves an appointment to a new slot.
type RescheduleRequest struct {
	NewTime time.Time `json:"new_time"`
	Reason  string    `json:"reason"`
}

// AssignDoctorRequest attaches a doctor to an appointment.
type AssignDoctorRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
}

// ListFilter narrows appointment listings. Nil fields are unconstrained;
// the access policy tightens them further before the query runs.
type ListFilter struct {
	HospitalID   *uuid.UUID
	DepartmentID *uuid.UUID
	DoctorID     *uuid.UUID
	PatientID    *uuid.UUID
	Status       *Status
	Limit        int
	Offset       int
}
