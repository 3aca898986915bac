package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/healthtipsdaily/tipline/internal/flow"
	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
)

// Sender delivers a message to a phone-number recipient.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// DirectSender delivers a direct message to a platform user ID.
type DirectSender interface {
	SendDirectMessage(ctx context.Context, userID string, body string) error
}

// Dispatcher runs the scheduled-tip sweep: select due schedules, generate a
// tip per user, attempt every available channel, and record the outcome.
type Dispatcher struct {
	store    store.Store
	tips     *flow.TipGenerator
	whatsapp Sender
	discord  DirectSender
}

// NewDispatcher creates a sweep dispatcher. Either sender may be nil, in
// which case that channel is unavailable.
func NewDispatcher(st store.Store, tips *flow.TipGenerator, whatsapp Sender, discord DirectSender) *Dispatcher {
	return &Dispatcher{store: st, tips: tips, whatsapp: whatsapp, discord: discord}
}

// Sweep runs one delivery pass at the given time. A schedule counts as sent
// when at least one channel succeeds; only then is last_sent updated. A user
// already handled today (by this or an overlapping sweep) is skipped via the
// (user, day) idempotency key; on total failure the key is released so the
// schedule stays eligible for the next sweep.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time, opts SweepOptions) (models.SweepResult, error) {
	var res models.SweepResult

	schedules, err := d.store.ListActiveSchedules()
	if err != nil {
		return res, err
	}
	due := SelectDue(now, opts, schedules)
	res.Selected = len(due)
	slog.Info("Dispatcher.Sweep selected schedules", "candidates", len(schedules), "due", len(due),
		"send_to_all", opts.SendToAll, "force", opts.Force)

	day := store.DeliveryDay(now)
	for _, cand := range due {
		user := cand.User

		fresh, err := d.store.ReserveTipDelivery(user.ID, day)
		if err != nil {
			slog.Error("Dispatcher.Sweep reservation failed", "error", err, "user_id", user.ID)
			res.Skipped++
			continue
		}
		if !fresh {
			slog.Debug("Dispatcher.Sweep already delivered today", "user_id", user.ID, "day", day)
			res.Skipped++
			continue
		}

		tip := d.tips.Generate(ctx, user, now)
		if d.deliver(ctx, user, tip) {
			if err := d.store.MarkScheduleSent(user.ID, now); err != nil {
				slog.Error("Dispatcher.Sweep failed to mark schedule sent", "error", err, "user_id", user.ID)
			}
			res.Sent++
		} else {
			if err := d.store.ReleaseTipDelivery(user.ID, day); err != nil {
				slog.Error("Dispatcher.Sweep failed to release delivery key", "error", err, "user_id", user.ID)
			}
			res.Skipped++
		}
	}

	slog.Info("Dispatcher.Sweep finished", "selected", res.Selected, "sent", res.Sent, "skipped", res.Skipped)
	return res, nil
}

// deliver attempts every channel the user is reachable on and reports
// whether at least one succeeded. Send failures are logged, not retried.
func (d *Dispatcher) deliver(ctx context.Context, user models.User, tip string) bool {
	sent := false

	if user.PhoneNumber != "" && d.whatsapp != nil {
		if err := d.whatsapp.SendMessage(ctx, user.PhoneNumber, tip); err != nil {
			slog.Error("Dispatcher tip send failed via WhatsApp", "error", err, "user_id", user.ID)
		} else {
			sent = true
			d.logOutgoing(user.ID, tip, models.ChannelWhatsApp)
		}
	}

	if user.DiscordID != "" && d.discord != nil {
		if err := d.discord.SendDirectMessage(ctx, user.DiscordID, tip); err != nil {
			slog.Error("Dispatcher tip send failed via Discord", "error", err, "user_id", user.ID)
		} else {
			sent = true
			d.logOutgoing(user.ID, tip, models.ChannelDiscord)
		}
	}

	if user.PhoneNumber == "" && user.DiscordID == "" {
		slog.Warn("Dispatcher: user has no contact methods, skipping", "user_id", user.ID)
	}

	return sent
}

func (d *Dispatcher) logOutgoing(userID, body string, ch models.Channel) {
	err := d.store.AddMessageLog(models.MessageLog{
		ID:        store.NewLogID(),
		UserID:    userID,
		Direction: models.DirectionOutgoing,
		Body:      body,
		Channel:   ch,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Error("Dispatcher failed to log outgoing tip", "error", err, "user_id", userID)
	}
}
