package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
)

// OnboardingState is the explicit onboarding position, derived from which
// preference fields are present. The order is strictly forward.
type OnboardingState int

const (
	// StateNew means the user has never been greeted (no preference map).
	StateNew OnboardingState = iota
	// StateAwaitingName means the welcome was sent but no name stored yet.
	StateAwaitingName
	// StateAwaitingInterests means the name is stored but no interests.
	StateAwaitingInterests
	// StateAwaitingTime means interests are stored but no delivery time.
	StateAwaitingTime
	// StateOnboarded is terminal; messages flow to the conversation path.
	StateOnboarded
)

func (s OnboardingState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateAwaitingName:
		return "AWAITING_NAME"
	case StateAwaitingInterests:
		return "AWAITING_INTERESTS"
	case StateAwaitingTime:
		return "AWAITING_TIME"
	case StateOnboarded:
		return "ONBOARDED"
	default:
		return fmt.Sprintf("OnboardingState(%d)", int(s))
	}
}

// NewUserWindow treats any user created this recently as still onboarding,
// guarding against duplicate webhook deliveries racing user creation.
const NewUserWindow = time.Minute

// StateOf derives the onboarding state from the preference map.
func StateOf(prefs models.Preferences) OnboardingState {
	switch {
	case prefs == nil:
		return StateNew
	case prefs[models.PrefName] == "":
		return StateAwaitingName
	case prefs[models.PrefInterests] == "":
		return StateAwaitingInterests
	case prefs[models.PrefPreferredTime] == "":
		return StateAwaitingTime
	default:
		return StateOnboarded
	}
}

// NeedsOnboarding reports whether an inbound message should be routed to the
// onboarding path: the preference map is missing or empty, or the user was
// created within NewUserWindow of now.
func NeedsOnboarding(u models.User, now time.Time) bool {
	if len(u.Preferences) == 0 {
		return true
	}
	return now.Sub(u.CreatedAt) < NewUserWindow
}

// Onboarding drives the new-user question sequence.
type Onboarding struct {
	store store.Store
}

// NewOnboarding creates the onboarding flow over the given store.
func NewOnboarding(st store.Store) *Onboarding {
	return &Onboarding{store: st}
}

// Advance processes one inbound message for a user on the onboarding path and
// returns the reply. done is true when the user is already fully onboarded,
// in which case no reply is produced and the caller should run the
// conversation path instead. The user is mutated in place as answers are
// stored.
func (o *Onboarding) Advance(ctx context.Context, u *models.User, text string, now time.Time) (reply string, done bool, err error) {
	state := StateOf(u.Preferences)
	slog.Debug("Onboarding.Advance", "user_id", u.ID, "state", state.String())

	switch state {
	case StateNew:
		// Mark the user as greeted; the first message is not the name.
		u.Preferences = models.Preferences{}
		u.LastInteractionAt = now
		if err := o.store.UpdateUser(*u); err != nil {
			return "", false, fmt.Errorf("failed to initialize preferences: %w", err)
		}
		return WelcomeText, false, nil

	case StateAwaitingName:
		name := strings.TrimSpace(text)
		u.Preferences[models.PrefName] = name
		u.DisplayName = name
		u.LastInteractionAt = now
		if err := o.store.UpdateUser(*u); err != nil {
			return "", false, fmt.Errorf("failed to store name: %w", err)
		}
		return fmt.Sprintf(askInterestsFmt, name), false, nil

	case StateAwaitingInterests:
		u.Preferences[models.PrefInterests] = text
		u.LastInteractionAt = now
		if err := o.store.UpdateUser(*u); err != nil {
			return "", false, fmt.Errorf("failed to store interests: %w", err)
		}
		return fmt.Sprintf(askTimeFmt, text), false, nil

	case StateAwaitingTime:
		canonical, perr := models.ParseClockTime(strings.TrimSpace(text))
		if perr != nil {
			// Re-prompt; no state or data change.
			return TimeRepromptText, false, nil
		}
		u.Preferences[models.PrefPreferredTime] = canonical
		u.LastInteractionAt = now
		if err := o.store.UpdateUser(*u); err != nil {
			return "", false, fmt.Errorf("failed to store preferred time: %w", err)
		}
		if err := o.store.UpsertSchedule(u.ID, canonical, true, now); err != nil {
			return "", false, fmt.Errorf("failed to create schedule: %w", err)
		}
		slog.Info("Onboarding complete", "user_id", u.ID, "preferred_time", canonical)
		return fmt.Sprintf(onboardedFmt, canonical), false, nil

	case StateOnboarded:
		return "", true, nil

	default:
		return "", false, fmt.Errorf("unexpected onboarding state %v", state)
	}
}
