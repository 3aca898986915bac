// Package api provides the Discord webhook handlers.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/healthtipsdaily/tipline/internal/flow"
	"github.com/healthtipsdaily/tipline/internal/models"
)

// Slash commands understood by the Discord webhook.
const (
	discordCommandHealthTip = "healthtip"
	discordCommandSubscribe = "subscribe"
)

// discordWebhookHandler serves Discord interactions (ping, slash commands,
// components) and plain message events on one endpoint.
func (s *Server) discordWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var inbound models.DiscordInbound
	if err := json.NewDecoder(r.Body).Decode(&inbound); err != nil {
		slog.Warn("Server.discordWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	switch inbound.Type {
	case models.DiscordInteractionPing:
		writeJSONResponse(w, http.StatusOK, models.DiscordInteractionResponse{Type: models.DiscordCallbackPong})
	case models.DiscordInteractionCommand:
		s.discordCommandHandler(w, r, inbound)
	case models.DiscordInteractionComponent:
		// Component interactions get a deferred update; there is no UI state
		// to change.
		writeJSONResponse(w, http.StatusOK, models.DiscordInteractionResponse{Type: models.DiscordCallbackDeferredUpdate})
	default:
		s.discordMessageHandler(w, r, inbound)
	}
}

// discordCommandHandler dispatches slash commands. All command responses are
// ephemeral.
func (s *Server) discordCommandHandler(w http.ResponseWriter, r *http.Request, inbound models.DiscordInbound) {
	invoker := discordInvoker(inbound)
	if inbound.Data == nil || invoker == nil {
		slog.Warn("Server.discordCommandHandler: command interaction missing data or invoker")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Malformed interaction"))
		return
	}

	now := nowUTC()
	user, err := s.st.UpsertUserByDiscordID(invoker.ID, invoker.Username, now)
	if err != nil {
		slog.Error("Server.discordCommandHandler: failed to upsert user", "error", err, "discord_id", invoker.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process command"))
		return
	}

	switch inbound.Data.Name {
	case discordCommandHealthTip:
		tip := s.tips.Generate(r.Context(), user, now)
		s.logMessage(user.ID, models.DirectionOutgoing, tip, models.ChannelDiscord, inbound.ID)
		writeJSONResponse(w, http.StatusOK, models.EphemeralResponse(tip))

	case discordCommandSubscribe:
		s.discordSubscribeHandler(w, user, inbound)

	default:
		slog.Debug("Server.discordCommandHandler: unknown command", "command", inbound.Data.Name)
		writeJSONResponse(w, http.StatusOK, models.EphemeralResponse(flow.UnknownCommandText))
	}
}

// discordSubscribeHandler handles /subscribe time:<HH:MM>: validate the time,
// store it as the preferred delivery time and activate the schedule.
func (s *Server) discordSubscribeHandler(w http.ResponseWriter, user models.User, inbound models.DiscordInbound) {
	raw, _ := inbound.Data.Option("time")
	canonical, err := models.ParseClockTime(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusOK, models.EphemeralResponse(flow.SubscribeRepromptText))
		return
	}

	now := nowUTC()
	if user.Preferences == nil {
		user.Preferences = models.Preferences{}
	}
	user.Preferences[models.PrefPreferredTime] = canonical
	user.LastInteractionAt = now
	if err := s.st.UpdateUser(user); err != nil {
		slog.Error("Server.discordSubscribeHandler: failed to update user", "error", err, "user_id", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to subscribe"))
		return
	}
	if err := s.st.UpsertSchedule(user.ID, canonical, true, now); err != nil {
		slog.Error("Server.discordSubscribeHandler: failed to upsert schedule", "error", err, "user_id", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to subscribe"))
		return
	}

	slog.Info("Server.discordSubscribeHandler: user subscribed", "user_id", user.ID, "preferred_time", canonical)
	writeJSONResponse(w, http.StatusOK, models.EphemeralResponse(fmt.Sprintf(flow.SubscribeConfirmFmt, canonical)))
}

// discordMessageHandler processes a plain message event through the same
// onboarding/conversation pipeline as WhatsApp, replying in the source
// channel.
func (s *Server) discordMessageHandler(w http.ResponseWriter, r *http.Request, inbound models.DiscordInbound) {
	// Ignore bot-authored and contentless events so the bot never talks to
	// itself.
	if !inbound.IsMessageEvent() {
		slog.Debug("Server.discordMessageHandler: ignoring non-message event")
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	ctx := r.Context()
	now := nowUTC()

	user, err := s.st.UpsertUserByDiscordID(inbound.Author.ID, inbound.Author.Username, now)
	if err != nil {
		slog.Error("Server.discordMessageHandler: failed to upsert user", "error", err, "discord_id", inbound.Author.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	s.logMessage(user.ID, models.DirectionIncoming, inbound.Content, models.ChannelDiscord, inbound.ID)

	reply, err := s.processInbound(ctx, &user, inbound.Content, now)
	if err != nil {
		slog.Error("Server.discordMessageHandler: failed to process message", "error", err, "user_id", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if reply != "" {
		s.logMessage(user.ID, models.DirectionOutgoing, reply, models.ChannelDiscord, "")
		if s.discordSvc == nil {
			slog.Warn("Server.discordMessageHandler: no Discord transport configured, reply dropped", "user_id", user.ID)
		} else if err := s.discordSvc.SendChannelMessage(ctx, inbound.ChannelID, reply); err != nil {
			// A failed send is logged and not retried; the event is still
			// acked so the gateway does not redeliver it.
			slog.Error("Server.discordMessageHandler: failed to send reply", "error", err, "user_id", user.ID)
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// discordInvoker returns the user behind an interaction: guild interactions
// carry a member, DM interactions carry the author directly.
func discordInvoker(inbound models.DiscordInbound) *models.DiscordUser {
	if inbound.Member != nil {
		return &inbound.Member.User
	}
	return inbound.Author
}
