package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caresync/caresync/internal/platform/apperr"
	"github.com/caresync/caresync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Appointment Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, hospital_id, department_id, doctor_id, appointment_note,
	scheduled_time, check_in_time, completed_time, cancellation_reason, status,
	rescheduled_from, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.HospitalID, &a.DepartmentID, &a.DoctorID, &a.Note,
		&a.ScheduledTime, &a.CheckInTime, &a.CompletedTime, &a.CancellationReason, &a.Status,
		&a.RescheduledFrom, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// The partial unique index on (hospital_id, scheduled_time) is the
// authoritative slot guard; a unique violation from a racing create is
// surfaced as the same conflict the fast-path check would have raised.
const slotIndexName = "appointments_hospital_slot_idx"

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, hospital_id, department_id, doctor_id,
			appointment_note, scheduled_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.HospitalID, a.DepartmentID, a.DoctorID,
		a.Note, a.ScheduledTime, a.Status)
	return translateSlotConflict(err)
}

func translateSlotConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == slotIndexName {
		return apperr.Wrap(apperr.Conflict("slot is already booked at this hospital"), err)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET doctor_id=$2, appointment_note=$3, scheduled_time=$4,
			check_in_time=$5, completed_time=$6, cancellation_reason=$7, status=$8,
			rescheduled_from=$9, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.DoctorID, a.Note, a.ScheduledTime,
		a.CheckInTime, a.CompletedTime, a.CancellationReason, a.Status,
		a.RescheduledFrom)
	return translateSlotConflict(err)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.HospitalID != nil {
		where += fmt.Sprintf(" AND hospital_id = $%d", idx)
		args = append(args, *f.HospitalID)
		idx++
	}
	if f.DepartmentID != nil {
		where += fmt.Sprintf(" AND department_id = $%d", idx)
		args = append(args, *f.DepartmentID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY scheduled_time ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListQueue(ctx context.Context, hospitalID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE hospital_id = $1 AND status <> $2
		ORDER BY scheduled_time ASC`,
		hospitalID, StatusCanceled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ExistsAtSlot(ctx context.Context, hospitalID uuid.UUID, t time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE hospital_id = $1 AND scheduled_time = $2 AND status <> $3
		)`, hospitalID, t, StatusCanceled).Scan(&exists)
	return exists, err
}

func (r *repoPG) HasOpenForPatient(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND status NOT IN ($2, $3)
		)`, patientID, StatusCompleted, StatusCanceled).Scan(&exists)
	return exists, err
}

// =========== Reschedule History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const historyCols = `id, appointment_id, old_time, new_time, reason, rescheduled_by, rescheduled_at`

func (r *historyRepoPG) Append(ctx context.Context, e *RescheduleEntry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reschedule_history (id, appointment_id, old_time, new_time, reason, rescheduled_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.AppointmentID, e.OldTime, e.NewTime, e.Reason, e.RescheduledBy)
	return err
}

func (r *historyRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*RescheduleEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+historyCols+` FROM reschedule_history
		WHERE appointment_id = $1
		ORDER BY rescheduled_at ASC`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*RescheduleEntry
	for rows.Next() {
		var e RescheduleEntry
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.OldTime, &e.NewTime, &e.Reason,
			&e.RescheduledBy, &e.RescheduledAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
