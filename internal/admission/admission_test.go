package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/answerbot-ai/answerbot/internal/log"
	"github.com/answerbot-ai/answerbot/internal/settings"
)

// fixedStore serves a static settings list.
type fixedStore struct {
	settings []settings.Setting
}

func (s *fixedStore) ListAll(context.Context) ([]settings.Setting, error) {
	return s.settings, nil
}

// fakeCounter records the window start it was queried with.
type fakeCounter struct {
	count     int
	err       error
	gotUser   string
	gotSince  time.Time
	callCount int
}

func (f *fakeCounter) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	f.callCount++
	f.gotUser = userID
	f.gotSince = since
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func cacheWith(t *testing.T, s ...settings.Setting) *settings.Cache {
	t.Helper()
	c := settings.NewCache(&fixedStore{settings: s}, log.NewNop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	return c
}

func TestAdmit_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		wantAdmit bool
	}{
		{name: "well under limit", count: 0, wantAdmit: true},
		{name: "one below limit admits", count: 1, wantAdmit: true},
		{name: "at limit rejects", count: 2, wantAdmit: false},
		{name: "over limit rejects", count: 3, wantAdmit: false},
	}

	cache := cacheWith(t,
		settings.Setting{Name: "daily_user_limit", Value: "2"},
		settings.Setting{Name: "limit_window_seconds", Value: "86400"},
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &fakeCounter{count: tt.count}
			ctrl := New(cache, counter, false, log.NewNop())

			d, err := ctrl.Admit(context.Background(), "U1", time.Now())
			if err != nil {
				t.Fatalf("Admit() error = %v", err)
			}
			if d.Admitted != tt.wantAdmit {
				t.Errorf("Admitted = %v, want %v (count=%d)", d.Admitted, tt.wantAdmit, tt.count)
			}
			if d.Limit != 2 {
				t.Errorf("Limit = %d, want 2", d.Limit)
			}
		})
	}
}

func TestAdmit_WindowStart(t *testing.T) {
	cache := cacheWith(t,
		settings.Setting{Name: "limit_window_seconds", Value: "3600"},
	)
	counter := &fakeCounter{}
	ctrl := New(cache, counter, false, log.NewNop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := ctrl.Admit(context.Background(), "U7", now); err != nil {
		t.Fatalf("Admit() = %v", err)
	}

	wantSince := now.Add(-time.Hour)
	if !counter.gotSince.Equal(wantSince) {
		t.Errorf("window start = %v, want %v", counter.gotSince, wantSince)
	}
	if counter.gotUser != "U7" {
		t.Errorf("queried user = %q, want U7", counter.gotUser)
	}
}

func TestAdmit_DefaultsWhenSettingsMissing(t *testing.T) {
	// Empty settings store: defaults 25 / 86400 apply without failing.
	cache := cacheWith(t)
	counter := &fakeCounter{count: 24}
	ctrl := New(cache, counter, false, log.NewNop())

	d, err := ctrl.Admit(context.Background(), "U1", time.Now())
	if err != nil {
		t.Fatalf("Admit() = %v", err)
	}
	if !d.Admitted {
		t.Error("count 24 under default limit 25 should admit")
	}
	if d.Limit != 25 {
		t.Errorf("Limit = %d, want default 25", d.Limit)
	}

	counter.count = 25
	d, err = ctrl.Admit(context.Background(), "U1", time.Now())
	if err != nil {
		t.Fatalf("Admit() = %v", err)
	}
	if d.Admitted {
		t.Error("count 25 at default limit 25 should reject")
	}
}

func TestAdmit_LedgerFailurePolicy(t *testing.T) {
	cache := cacheWith(t)
	ledgerErr := errors.New("connection refused")

	t.Run("fail closed", func(t *testing.T) {
		ctrl := New(cache, &fakeCounter{err: ledgerErr}, false, log.NewNop())
		d, err := ctrl.Admit(context.Background(), "U1", time.Now())
		if !errors.Is(err, ledgerErr) {
			t.Errorf("Admit() error = %v, want wrapped ledger error", err)
		}
		if d.Admitted {
			t.Error("fail-closed policy must reject on ledger failure")
		}
	})

	t.Run("fail open", func(t *testing.T) {
		ctrl := New(cache, &fakeCounter{err: ledgerErr}, true, log.NewNop())
		d, err := ctrl.Admit(context.Background(), "U1", time.Now())
		if !errors.Is(err, ledgerErr) {
			t.Errorf("Admit() error = %v, want wrapped ledger error", err)
		}
		if !d.Admitted {
			t.Error("fail-open policy must admit on ledger failure")
		}
	})
}
