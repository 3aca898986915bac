package store

import (
	"sort"
	"sync"
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// MemoryStore is an in-memory Store used for tests and DSN-less runs.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]models.User
	byPhone       map[string]string
	byDiscordID   map[string]string
	conversations map[string]models.Conversation
	schedules     map[string]models.Schedule
	logs          []models.MessageLog
	deliveries    map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		byPhone:       make(map[string]string),
		byDiscordID:   make(map[string]string),
		conversations: make(map[string]models.Conversation),
		schedules:     make(map[string]models.Schedule),
		deliveries:    make(map[string]struct{}),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) UpsertUserByPhone(phone, displayName string, now time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPhone[phone]; ok {
		u := s.users[id]
		u.LastInteractionAt = now
		s.users[id] = u
		return u, nil
	}
	u := models.User{
		ID:                NewUserID(),
		PhoneNumber:       phone,
		DisplayName:       displayName,
		FirstSeenAt:       now,
		LastInteractionAt: now,
		CreatedAt:         now,
	}
	s.users[u.ID] = u
	s.byPhone[phone] = u.ID
	return u, nil
}

func (s *MemoryStore) UpsertUserByDiscordID(discordID, displayName string, now time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byDiscordID[discordID]; ok {
		u := s.users[id]
		u.LastInteractionAt = now
		s.users[id] = u
		return u, nil
	}
	u := models.User{
		ID:                NewUserID(),
		DiscordID:         discordID,
		DisplayName:       displayName,
		FirstSeenAt:       now,
		LastInteractionAt: now,
		CreatedAt:         now,
	}
	s.users[u.ID] = u
	s.byDiscordID[discordID] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		s.users[u.ID] = u
		return nil
	}
	existing.DisplayName = u.DisplayName
	existing.Preferences = u.Preferences
	existing.LastInteractionAt = u.LastInteractionAt
	s.users[u.ID] = existing
	return nil
}

func (s *MemoryStore) GetConversation(userID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) SaveConversation(c models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.UserID] = c
	return nil
}

func (s *MemoryStore) UpsertSchedule(userID, preferredTime string, active bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched, ok := s.schedules[userID]; ok {
		sched.PreferredTime = preferredTime
		sched.Active = active
		sched.UpdatedAt = now
		s.schedules[userID] = sched
		return nil
	}
	s.schedules[userID] = models.Schedule{
		UserID:        userID,
		PreferredTime: preferredTime,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return nil
}

func (s *MemoryStore) ListActiveSchedules() ([]models.UserSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserSchedule
	for userID, sched := range s.schedules {
		if !sched.Active {
			continue
		}
		u, ok := s.users[userID]
		if !ok {
			continue
		}
		out = append(out, models.UserSchedule{Schedule: sched, User: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out, nil
}

func (s *MemoryStore) MarkScheduleSent(userID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[userID]
	if !ok {
		return nil
	}
	t := sentAt
	sched.LastSentAt = &t
	sched.UpdatedAt = sentAt
	s.schedules[userID] = sched
	return nil
}

func (s *MemoryStore) AddMessageLog(l models.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

// MessageLogs returns a copy of all audit records (for tests).
func (s *MemoryStore) MessageLogs() []models.MessageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MessageLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// ScheduleFor returns the user's schedule, or nil if none exists (for tests).
func (s *MemoryStore) ScheduleFor(userID string) *models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[userID]
	if !ok {
		return nil
	}
	return &sched
}

func (s *MemoryStore) Stats() (models.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.StoreStats{Users: len(s.users), MessageLogs: len(s.logs)}
	for _, sched := range s.schedules {
		if sched.Active {
			stats.ActiveSchedules++
		}
	}
	return stats, nil
}

func (s *MemoryStore) ReserveTipDelivery(userID, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + day
	if _, ok := s.deliveries[key]; ok {
		return false, nil
	}
	s.deliveries[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) ReleaseTipDelivery(userID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveries, userID+"|"+day)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
