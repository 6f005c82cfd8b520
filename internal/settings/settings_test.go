package settings

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/answerbot-ai/answerbot/internal/log"
)

// stubStore returns a fixed set of settings, or an error.
type stubStore struct {
	mu       sync.Mutex
	settings []Setting
	err      error
}

func (s *stubStore) ListAll(context.Context) ([]Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.settings, nil
}

func (s *stubStore) set(settings []Setting, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.err = err
}

func TestCache_DefaultsBeforeRefresh(t *testing.T) {
	c := NewCache(&stubStore{}, log.NewNop())

	if got := c.Int(KeyDailyUserLimit, DefaultDailyUserLimit); got != 25 {
		t.Errorf("Int() = %d, want 25", got)
	}
	if got := c.String("model_name", "gemini-pro"); got != "gemini-pro" {
		t.Errorf("String() = %q, want gemini-pro", got)
	}
}

func TestCache_IntegerCoercion(t *testing.T) {
	store := &stubStore{settings: []Setting{
		{Name: "daily_user_limit", Value: "25"},
		{Name: "model_name", Value: "gemini-pro"},
		{Name: "negative", Value: "-3"},
	}}
	c := NewCache(store, log.NewNop())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	if got := c.Int("daily_user_limit", 0); got != 25 {
		t.Errorf(`Int("daily_user_limit") = %d, want 25`, got)
	}
	if got := c.Int("negative", 0); got != -3 {
		t.Errorf(`Int("negative") = %d, want -3`, got)
	}
	// Non-numeric values stay strings; Int falls back to the default.
	if got := c.Int("model_name", 7); got != 7 {
		t.Errorf(`Int("model_name") = %d, want default 7`, got)
	}
	if got := c.String("model_name", ""); got != "gemini-pro" {
		t.Errorf(`String("model_name") = %q, want gemini-pro`, got)
	}
	// Numeric values format back to their literal for String.
	if got := c.String("daily_user_limit", ""); got != "25" {
		t.Errorf(`String("daily_user_limit") = %q, want "25"`, got)
	}
}

func TestCache_RefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	store := &stubStore{settings: []Setting{
		{Name: "daily_user_limit", Value: "10"},
	}}
	c := NewCache(store, log.NewNop())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	store.set(nil, errors.New("connection refused"))
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should return the store error")
	}

	if got := c.Int("daily_user_limit", 25); got != 10 {
		t.Errorf("Int() after failed refresh = %d, want previous value 10", got)
	}
}

func TestCache_RefreshReplacesWholesale(t *testing.T) {
	store := &stubStore{settings: []Setting{
		{Name: "old_key", Value: "1"},
	}}
	c := NewCache(store, log.NewNop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	store.set([]Setting{{Name: "new_key", Value: "2"}}, nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	// The old generation is gone entirely, not merged.
	if got := c.Int("old_key", -1); got != -1 {
		t.Errorf(`Int("old_key") = %d, want default -1`, got)
	}
	if got := c.Int("new_key", -1); got != 2 {
		t.Errorf(`Int("new_key") = %d, want 2`, got)
	}
}

func TestCache_ConcurrentReadsDuringRefresh(t *testing.T) {
	store := &stubStore{settings: []Setting{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "1"},
	}}
	c := NewCache(store, log.NewNop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for gen := 2; gen <= 100; gen++ {
			v := strconv.Itoa(gen)
			store.set([]Setting{
				{Name: "a", Value: v},
				{Name: "b", Value: v},
			}, nil)
			_ = c.Refresh(context.Background())
		}
	}()

	// Generations only increase. Reading a before b, a partially-updated
	// mapping would be the only way to observe b < a.
	for i := 0; i < 1000; i++ {
		a := c.Int("a", 0)
		b := c.Int("b", 0)
		if b < a {
			t.Fatalf("torn snapshot: a=%d b=%d", a, b)
		}
	}
	<-done
}
