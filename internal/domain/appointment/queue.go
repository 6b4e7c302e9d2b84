package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/platform/ws"
)

// ChannelAppointments is the ws channel carrying per-hospital queue updates.
const ChannelAppointments = "appointments"

// QueueEntry is one row of a hospital's live queue as pushed to dashboards.
type QueueEntry struct {
	ID             uuid.UUID `json:"id"`
	Patient        string    `json:"patient"`
	PatientID      uuid.UUID `json:"patient_id"`
	Time           string    `json:"time"`
	Status         Status    `json:"status"`
	AppointmentDue string    `json:"appointment_due"`
}

// QueueEvent is the frame sent to the hospital's appointments room.
type QueueEvent struct {
	Type string       `json:"type"`
	Data []QueueEntry `json:"data"`
}

// QueueBroadcaster rebuilds a hospital's queue snapshot and fans it out.
// Every appointment mutation triggers a full recompute; the queue is small
// and a rebuild is simpler than incremental patching.
type QueueBroadcaster struct {
	repo   Repository
	dir    Directory
	hub    *ws.Hub
	logger zerolog.Logger
	now    func() time.Time
}

func NewQueueBroadcaster(repo Repository, dir Directory, hub *ws.Hub, logger zerolog.Logger) *QueueBroadcaster {
	return &QueueBroadcaster{repo: repo, dir: dir, hub: hub, logger: logger, now: time.Now}
}

// Build assembles the current queue snapshot for a hospital: non-canceled
// appointments ascending by scheduled time, with patient display names and
// a humanized countdown.
func (q *QueueBroadcaster) Build(ctx context.Context, hospitalID uuid.UUID) ([]QueueEntry, error) {
	appts, err := q.repo.ListQueue(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	now := q.now()
	entries := make([]QueueEntry, 0, len(appts))
	for _, a := range appts {
		name := ""
		if patient, err := q.dir.Patient(ctx, a.PatientID); err == nil {
			name = patient.FullName
		}
		entries = append(entries, QueueEntry{
			ID:             a.ID,
			Patient:        name,
			PatientID:      a.PatientID,
			Time:           a.ScheduledTime.Format(time.RFC3339),
			Status:         a.Status,
			AppointmentDue: remainingTime(now, a.ScheduledTime),
		})
	}
	return entries, nil
}

// Event builds the queue_update frame for a hospital.
func (q *QueueBroadcaster) Event(ctx context.Context, hospitalID uuid.UUID) (*QueueEvent, error) {
	entries, err := q.Build(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return &QueueEvent{Type: "queue_update", Data: entries}, nil
}

// Broadcast pushes a fresh snapshot to the hospital's room. Failures are
// logged, never propagated; a dropped update does not fail the mutation
// that triggered it.
func (q *QueueBroadcaster) Broadcast(ctx context.Context, hospitalID uuid.UUID) {
	event, err := q.Event(ctx, hospitalID)
	if err != nil {
		q.logger.Error().Err(err).Str("hospital_id", hospitalID.String()).Msg("queue snapshot failed")
		return
	}
	room := ws.Room{Channel: ChannelAppointments, ID: hospitalID.String()}
	if err := q.hub.Publish(room, event); err != nil {
		q.logger.Error().Err(err).Str("hospital_id", hospitalID.String()).Msg("queue broadcast failed")
	}
}

// remainingTime renders how far away a slot is: "Due" once the time has
// arrived, otherwise a compact countdown like "1d 2h 30m".
func remainingTime(now, scheduled time.Time) string {
	if !scheduled.After(now) {
		return "Due"
	}

	d := scheduled.Sub(now)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
