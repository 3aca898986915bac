package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthtipsdaily/tipline/internal/flow"
	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
)

type fixedGenerator struct{}

func (fixedGenerator) GenerateResponse(ctx context.Context, msgs []models.ConversationEntry) (string, error) {
	return "today's tip", nil
}

// fakeSender records sends and optionally fails them all.
type fakeSender struct {
	sent []string
	fail bool
}

func (f *fakeSender) SendMessage(ctx context.Context, to string, body string) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeDirectSender struct {
	sent []string
	fail bool
}

func (f *fakeDirectSender) SendDirectMessage(ctx context.Context, userID string, body string) error {
	if f.fail {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, userID)
	return nil
}

func subscribedUser(t *testing.T, st *store.MemoryStore, phone, preferredTime string, now time.Time) models.User {
	t.Helper()
	u, err := st.UpsertUserByPhone(phone, "WhatsApp User", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("UpsertUserByPhone: %v", err)
	}
	if err := st.UpsertSchedule(u.ID, preferredTime, true, now.Add(-time.Hour)); err != nil {
		t.Fatalf("UpsertSchedule: %v", err)
	}
	return u
}

func TestSweepSendsDueTip(t *testing.T) {
	st := store.NewMemoryStore()
	wa := &fakeSender{}
	d := NewDispatcher(st, flow.NewTipGenerator(fixedGenerator{}), wa, nil)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	u := subscribedUser(t, st, "+15551234567", "08:00", now)

	res, err := d.Sweep(context.Background(), now, SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Selected != 1 || res.Sent != 1 || res.Skipped != 0 {
		t.Errorf("result = %+v, want 1 selected, 1 sent", res)
	}
	if len(wa.sent) != 1 || wa.sent[0] != "+15551234567" {
		t.Errorf("sent to %v", wa.sent)
	}

	sched := st.ScheduleFor(u.ID)
	if sched.LastSentAt == nil || !sched.LastSentAt.Equal(now) {
		t.Errorf("last_sent = %v, want %v", sched.LastSentAt, now)
	}

	logs := st.MessageLogs()
	if len(logs) != 1 || logs[0].Direction != models.DirectionOutgoing || logs[0].Channel != models.ChannelWhatsApp {
		t.Errorf("message logs = %+v", logs)
	}
}

func TestSweepSkipsOffScheduleUsers(t *testing.T) {
	st := store.NewMemoryStore()
	wa := &fakeSender{}
	d := NewDispatcher(st, flow.NewTipGenerator(fixedGenerator{}), wa, nil)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	subscribedUser(t, st, "+15551234567", "18:30", now)

	res, err := d.Sweep(context.Background(), now, SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Selected != 0 || res.Sent != 0 {
		t.Errorf("result = %+v, want nothing selected", res)
	}
	if len(wa.sent) != 0 {
		t.Errorf("unexpected sends: %v", wa.sent)
	}
}

func TestSweepIdempotentWithinDay(t *testing.T) {
	st := store.NewMemoryStore()
	wa := &fakeSender{}
	d := NewDispatcher(st, flow.NewTipGenerator(fixedGenerator{}), wa, nil)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	subscribedUser(t, st, "+15551234567", "08:00", now)

	if _, err := d.Sweep(context.Background(), now, SweepOptions{}); err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	// Forced second pass the same day: the delivery key blocks a resend.
	res, err := d.Sweep(context.Background(), now.Add(time.Minute), SweepOptions{SendToAll: true, Force: true})
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if res.Sent != 0 || res.Skipped != 1 {
		t.Errorf("second result = %+v, want 0 sent 1 skipped", res)
	}
	if len(wa.sent) != 1 {
		t.Errorf("total sends = %d, want 1", len(wa.sent))
	}
}

func TestSweepReleasesKeyOnTotalFailure(t *testing.T) {
	st := store.NewMemoryStore()
	wa := &fakeSender{fail: true}
	d := NewDispatcher(st, flow.NewTipGenerator(fixedGenerator{}), wa, nil)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	u := subscribedUser(t, st, "+15551234567", "08:00", now)

	res, err := d.Sweep(context.Background(), now, SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Sent != 0 || res.Skipped != 1 {
		t.Errorf("result = %+v, want failure counted as skipped", res)
	}
	if st.ScheduleFor(u.ID).LastSentAt != nil {
		t.Error("last_sent must not be updated on total failure")
	}

	// The transport recovers; the same day can be retried.
	wa.fail = false
	res, err = d.Sweep(context.Background(), now.Add(time.Minute), SweepOptions{SendToAll: true})
	if err != nil {
		t.Fatalf("retry Sweep: %v", err)
	}
	if res.Sent != 1 {
		t.Errorf("retry result = %+v, want 1 sent", res)
	}
}

func TestSweepRoutesPerChannel(t *testing.T) {
	st := store.NewMemoryStore()
	wa := &fakeSender{}
	dm := &fakeDirectSender{}
	d := NewDispatcher(st, flow.NewTipGenerator(fixedGenerator{}), wa, dm)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	phoneUser := subscribedUser(t, st, "+15551234567", "08:00", now)

	discordUser, err := st.UpsertUserByDiscordID("disc-42", "pat", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("UpsertUserByDiscordID: %v", err)
	}
	if err := st.UpsertSchedule(discordUser.ID, "08:00", true, now.Add(-time.Hour)); err != nil {
		t.Fatalf("UpsertSchedule: %v", err)
	}

	res, err := d.Sweep(context.Background(), now, SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Sent != 2 {
		t.Errorf("result = %+v, want both users sent", res)
	}
	if len(wa.sent) != 1 || wa.sent[0] != "+15551234567" {
		t.Errorf("whatsapp sends = %v", wa.sent)
	}
	if len(dm.sent) != 1 || dm.sent[0] != "disc-42" {
		t.Errorf("discord sends = %v", dm.sent)
	}
	for _, id := range []string{phoneUser.ID, discordUser.ID} {
		if st.ScheduleFor(id).LastSentAt == nil {
			t.Errorf("last_sent not updated for %s", id)
		}
	}
}
