package scheduler

import (
	"testing"
)

func TestAddJobValidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("AddJob with valid expression failed: %v", err)
	}
}

func TestAddJobInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("not a cron", func() {}); err == nil {
		t.Error("AddJob with invalid expression should fail")
	}
	// 6-field expressions belong to the seconds-aware parser we do not use.
	if err := s.AddJob("0 * * * * *", func() {}); err == nil {
		t.Error("AddJob with 6-field expression should fail")
	}
}
