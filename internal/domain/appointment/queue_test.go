package appointment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresync/caresync/internal/domain/directory"
	"github.com/caresync/caresync/internal/platform/ws"
)

func TestRemainingTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		scheduled time.Time
		want      string
	}{
		{"past", now.Add(-time.Hour), "Due"},
		{"exactly now", now, "Due"},
		{"minutes only", now.Add(45 * time.Minute), "45m"},
		{"hours and minutes", now.Add(2*time.Hour + 5*time.Minute), "2h 5m"},
		{"days", now.Add(26*time.Hour + 30*time.Minute), "1d 2h 30m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := remainingTime(now, tc.scheduled); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestQueueBuild_OrderedAndCanceledExcluded(t *testing.T) {
	repo := newMockRepo()
	dir := newMockDirectory()
	hospitalID := uuid.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := func(name string, at time.Time, status Status) uuid.UUID {
		patientID := uuid.New()
		dir.patients[patientID] = &directory.Patient{ID: patientID, FullName: name}
		a := &Appointment{
			PatientID:     patientID,
			HospitalID:    hospitalID,
			DepartmentID:  uuid.New(),
			ScheduledTime: at,
			Status:        status,
		}
		if err := repo.Create(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
		return a.ID
	}

	seed("Second", now.Add(3*time.Hour), StatusPending)
	firstID := seed("First", now.Add(30*time.Minute), StatusInProgress)
	seed("Gone", now.Add(time.Hour), StatusCanceled)

	q := NewQueueBroadcaster(repo, dir, ws.NewHub(), zerolog.Nop())
	q.now = func() time.Time { return now }

	entries, err := q.Build(context.Background(), hospitalID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("canceled rows must not appear, got %d entries", len(entries))
	}
	if entries[0].ID != firstID || entries[0].Patient != "First" {
		t.Errorf("expected earliest appointment first, got %+v", entries[0])
	}
	if entries[0].AppointmentDue != "30m" {
		t.Errorf("expected countdown 30m, got %q", entries[0].AppointmentDue)
	}
	if entries[1].AppointmentDue != "3h 0m" {
		t.Errorf("expected countdown 3h 0m, got %q", entries[1].AppointmentDue)
	}
}

func TestQueueBroadcast_ReachesHospitalRoomOnly(t *testing.T) {
	f := newFixture(t)

	subscriber := ws.NewClient(nil)
	f.hub.Join(subscriber, ws.Room{Channel: ChannelAppointments, ID: f.hospitalID.String()})
	bystander := ws.NewClient(nil)
	f.hub.Join(bystander, ws.Room{Channel: ChannelAppointments, ID: uuid.New().String()})

	f.book(t, in(2*time.Hour))

	select {
	case frame := <-subscriber.Send:
		var event QueueEvent
		if err := json.Unmarshal(frame, &event); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if event.Type != "queue_update" {
			t.Errorf("expected queue_update, got %q", event.Type)
		}
		if len(event.Data) != 1 {
			t.Errorf("expected 1 queue entry, got %d", len(event.Data))
		}
	default:
		t.Fatal("expected a frame in the hospital's room")
	}

	select {
	case <-bystander.Send:
		t.Fatal("frame leaked into another hospital's room")
	default:
	}
}
