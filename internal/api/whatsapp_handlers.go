// Package api provides the WhatsApp webhook handlers.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/healthtipsdaily/tipline/internal/flow"
	"github.com/healthtipsdaily/tipline/internal/messaging"
	"github.com/healthtipsdaily/tipline/internal/models"
	"github.com/healthtipsdaily/tipline/internal/store"
)

// DefaultWhatsAppDisplayName names users created from an inbound WhatsApp
// message before they tell us their name.
const DefaultWhatsAppDisplayName = "WhatsApp User"

// whatsappWebhookHandler serves the WhatsApp webhook: GET for the provider's
// verification handshake, POST for inbound messages.
func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.whatsappVerifyHandler(w, r)
	case http.MethodPost:
		s.whatsappMessageHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// whatsappVerifyHandler answers the subscription handshake: echo the
// challenge when the mode and token match, otherwise 403.
func (s *Server) whatsappVerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub_mode")
	token := q.Get("hub_verify_token")
	challenge := q.Get("hub_challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("Server.whatsappVerifyHandler: webhook verified")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Server.whatsappVerifyHandler: failed to write challenge", "error", err)
		}
		return
	}
	slog.Warn("Server.whatsappVerifyHandler: verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// whatsappMessageHandler processes one inbound message: find or create the
// user, route through onboarding or conversation, and send the reply back.
func (s *Server) whatsappMessageHandler(w http.ResponseWriter, r *http.Request) {
	var inbound models.WhatsAppInbound
	if err := json.NewDecoder(r.Body).Decode(&inbound); err != nil {
		// Malformed payloads are acknowledged, not rejected, so the provider
		// does not redeliver them.
		slog.Warn("Server.whatsappMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	// Status callbacks and other non-message events are acknowledged without
	// processing so the provider does not retry them.
	if !inbound.Valid() {
		slog.Debug("Server.whatsappMessageHandler: ignoring non-message event")
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	// Canonicalize the sender so formatting variants of one number map to the
	// same user row.
	phone, err := messaging.CanonicalizePhone(inbound.From)
	if err != nil {
		slog.Warn("Server.whatsappMessageHandler: ignoring message with invalid sender", "error", err, "from", inbound.From)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	ctx := r.Context()
	now := nowUTC()

	user, err := s.st.UpsertUserByPhone(phone, DefaultWhatsAppDisplayName, now)
	if err != nil {
		slog.Error("Server.whatsappMessageHandler: failed to upsert user", "error", err, "from", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	s.logMessage(user.ID, models.DirectionIncoming, inbound.Message, models.ChannelWhatsApp, inbound.MessageID)

	reply, err := s.processInbound(ctx, &user, inbound.Message, now)
	if err != nil {
		slog.Error("Server.whatsappMessageHandler: failed to process message", "error", err, "user_id", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if reply != "" {
		s.logMessage(user.ID, models.DirectionOutgoing, reply, models.ChannelWhatsApp, "")
		if s.msgService == nil {
			slog.Warn("Server.whatsappMessageHandler: no WhatsApp transport configured, reply dropped", "user_id", user.ID)
		} else if err := s.msgService.SendMessage(ctx, user.PhoneNumber, reply); err != nil {
			// A failed send is logged and not retried; the webhook still acks
			// so the provider does not redeliver an already-processed message.
			slog.Error("Server.whatsappMessageHandler: failed to send reply", "error", err, "user_id", user.ID)
		}
	}

	slog.Debug("Server.whatsappMessageHandler: message handled", "user_id", user.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// processInbound routes one inbound text through onboarding until it is
// complete, then through the conversational flow.
func (s *Server) processInbound(ctx context.Context, user *models.User, text string, now time.Time) (string, error) {
	if flow.NeedsOnboarding(*user, now) {
		reply, done, err := s.onboarding.Advance(ctx, user, text, now)
		if err != nil {
			return "", err
		}
		if !done {
			return reply, nil
		}
	}
	return s.conv.Reply(ctx, *user, text, now)
}

// logMessage appends an audit record; failures are logged and swallowed so
// auditing never blocks message handling.
func (s *Server) logMessage(userID string, dir models.Direction, body string, ch models.Channel, channelMessageID string) {
	err := s.st.AddMessageLog(models.MessageLog{
		ID:               store.NewLogID(),
		UserID:           userID,
		Direction:        dir,
		Body:             body,
		Channel:          ch,
		ChannelMessageID: channelMessageID,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		slog.Error("Server.logMessage: failed to record message log", "error", err, "user_id", userID)
	}
}
