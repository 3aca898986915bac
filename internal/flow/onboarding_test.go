package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
)

func newOnboardedUser(t *testing.T, st store.Store, phone string, created time.Time) models.User {
	t.Helper()
	u, err := st.UpsertUserByPhone(phone, "WhatsApp User", created)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func TestStateOf(t *testing.T) {
	cases := []struct {
		name  string
		prefs models.Preferences
		want  OnboardingState
	}{
		{"nil map", nil, StateNew},
		{"empty map", models.Preferences{}, StateAwaitingName},
		{"name only", models.Preferences{models.PrefName: "Ana"}, StateAwaitingInterests},
		{"name and interests", models.Preferences{models.PrefName: "Ana", models.PrefInterests: "sleep"}, StateAwaitingTime},
		{"complete", models.Preferences{models.PrefName: "Ana", models.PrefInterests: "sleep", models.PrefPreferredTime: "08:00"}, StateOnboarded},
	}
	for _, tc := range cases {
		if got := StateOf(tc.prefs); got != tc.want {
			t.Errorf("%s: StateOf = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNeedsOnboarding(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	full := models.Preferences{models.PrefName: "Ana", models.PrefInterests: "sleep", models.PrefPreferredTime: "08:00"}

	cases := []struct {
		name string
		user models.User
		want bool
	}{
		{"no preferences", models.User{CreatedAt: now.Add(-time.Hour)}, true},
		{"empty preferences", models.User{Preferences: models.Preferences{}, CreatedAt: now.Add(-time.Hour)}, true},
		{"complete but just created", models.User{Preferences: full, CreatedAt: now.Add(-10 * time.Second)}, true},
		{"complete and settled", models.User{Preferences: full, CreatedAt: now.Add(-time.Hour)}, false},
	}
	for _, tc := range cases {
		if got := NeedsOnboarding(tc.user, now); got != tc.want {
			t.Errorf("%s: NeedsOnboarding = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOnboardingFullSequence(t *testing.T) {
	st := store.NewMemoryStore()
	ob := NewOnboarding(st)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	user := newOnboardedUser(t, st, "+15551234567", now)
	if user.Preferences != nil {
		t.Fatalf("new user should start with no preference map, got %v", user.Preferences)
	}

	// First contact: welcome, triggering text not consumed as the name.
	reply, done, err := ob.Advance(ctx, &user, "hello", now)
	if err != nil || done {
		t.Fatalf("first Advance: reply err=%v done=%v", err, done)
	}
	if reply != WelcomeText {
		t.Errorf("first reply = %q, want welcome text", reply)
	}
	if user.Preferences == nil || len(user.Preferences) != 0 {
		t.Errorf("after welcome, preferences should be present but empty, got %v", user.Preferences)
	}

	// Name.
	reply, done, err = ob.Advance(ctx, &user, "  Ana  ", now)
	if err != nil || done {
		t.Fatalf("name Advance: err=%v done=%v", err, done)
	}
	if user.Preferences[models.PrefName] != "Ana" {
		t.Errorf("stored name = %q, want trimmed 'Ana'", user.Preferences[models.PrefName])
	}
	if !strings.Contains(reply, "Ana") {
		t.Errorf("interests prompt should address the user by name, got %q", reply)
	}

	// Interests.
	reply, done, err = ob.Advance(ctx, &user, "sleep and nutrition", now)
	if err != nil || done {
		t.Fatalf("interests Advance: err=%v done=%v", err, done)
	}
	if user.Preferences[models.PrefInterests] != "sleep and nutrition" {
		t.Errorf("stored interests = %q", user.Preferences[models.PrefInterests])
	}

	// Bad time re-prompts without changing state.
	reply, done, err = ob.Advance(ctx, &user, "morning", now)
	if err != nil || done {
		t.Fatalf("bad time Advance: err=%v done=%v", err, done)
	}
	if reply != TimeRepromptText {
		t.Errorf("bad time reply = %q, want re-prompt", reply)
	}
	if _, ok := user.Preferences[models.PrefPreferredTime]; ok {
		t.Error("invalid time must not be stored")
	}
	if st.ScheduleFor(user.ID) != nil {
		t.Error("invalid time must not create a schedule")
	}

	// Valid time completes onboarding, canonicalized, and creates the schedule.
	reply, done, err = ob.Advance(ctx, &user, "8:30", now)
	if err != nil || done {
		t.Fatalf("time Advance: err=%v done=%v", err, done)
	}
	if user.Preferences[models.PrefPreferredTime] != "08:30" {
		t.Errorf("stored time = %q, want canonical 08:30", user.Preferences[models.PrefPreferredTime])
	}
	if !strings.Contains(reply, "08:30") {
		t.Errorf("confirmation should echo the canonical time, got %q", reply)
	}
	sched := st.ScheduleFor(user.ID)
	if sched == nil {
		t.Fatal("completing onboarding must create a schedule")
	}
	if !sched.Active || sched.PreferredTime != "08:30" {
		t.Errorf("schedule = %+v, want active at 08:30", sched)
	}
	if sched.LastSentAt != nil {
		t.Errorf("new schedule must have no last_sent, got %v", sched.LastSentAt)
	}

	// A fully onboarded user falls through to the conversation path.
	reply, done, err = ob.Advance(ctx, &user, "how do I sleep better?", now)
	if err != nil {
		t.Fatalf("onboarded Advance: %v", err)
	}
	if !done || reply != "" {
		t.Errorf("onboarded Advance = (%q, %v), want empty reply and done", reply, done)
	}
}

func TestOnboardingStatePersists(t *testing.T) {
	st := store.NewMemoryStore()
	ob := NewOnboarding(st)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	user := newOnboardedUser(t, st, "+15551234567", now)
	if _, _, err := ob.Advance(ctx, &user, "hi", now); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, _, err := ob.Advance(ctx, &user, "Ana", now); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Reload from storage; progress must survive.
	stored, err := st.GetUser(user.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetUser: %v, %v", stored, err)
	}
	if got := StateOf(stored.Preferences); got != StateAwaitingInterests {
		t.Errorf("persisted state = %v, want StateAwaitingInterests", got)
	}
	if stored.DisplayName != "Ana" {
		t.Errorf("persisted display name = %q, want Ana", stored.DisplayName)
	}
}

func TestOnboardingStateString(t *testing.T) {
	for state, want := range map[OnboardingState]string{
		StateNew:               "NEW",
		StateAwaitingName:      "AWAITING_NAME",
		StateAwaitingInterests: "AWAITING_INTERESTS",
		StateAwaitingTime:      "AWAITING_TIME",
		StateOnboarded:         "ONBOARDED",
	} {
		if got := state.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", int(state), got, want)
		}
	}
	if got := OnboardingState(42).String(); got != fmt.Sprintf("OnboardingState(%d)", 42) {
		t.Errorf("unknown state String = %q", got)
	}
}
