// Package gate implements per-user admission control for downloads. A
// non-admin user may start one download per cooldown window; admins bypass the
// window entirely and never advance the clock.
package gate

import (
	"context"
	"time"

	"github.com/clipvault/clipvault/models"
)

// UserClock persists the per-user cooldown clock. Advance must be atomic with
// respect to concurrent calls for the same user: the check and the write are
// one conditional statement, not a read followed by a write.
type UserClock interface {
	// Advance sets the clock to now iff it is nil or at/before threshold.
	// Returns whether the row was advanced and the clock value before the call.
	Advance(ctx context.Context, userID uint, now, threshold time.Time) (bool, *time.Time, error)
	// Set overwrites the clock unconditionally (nil clears it).
	Set(ctx context.Context, userID uint, at *time.Time) error
	// Clear nulls the clock, reporting whether there was anything to clear.
	Clear(ctx context.Context, userID uint) (bool, error)
}

// Decision is the outcome of an admission attempt. Advanced is set only when
// the clock was actually written; admin admissions leave it false.
type Decision struct {
	Admitted      bool
	Advanced      bool
	CooldownUntil time.Time  // zero unless blocked
	Previous      *time.Time // clock value before an admitted advance, for Restore
}

// Gate decides whether a download request is admitted now or must wait.
type Gate struct {
	clock    UserClock
	cooldown time.Duration
	now      func() time.Time
}

// New builds a gate over the given clock store.
func New(clock UserClock, cooldown time.Duration) *Gate {
	return &Gate{clock: clock, cooldown: cooldown, now: time.Now}
}

// Cooldown returns the configured window length.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }

// Status returns the instant the user's cooldown expires, or nil when the
// user may download now. Side-effect free.
func (g *Gate) Status(user *models.User) *time.Time {
	if user.IsAdmin() || user.LastDownloadAt == nil {
		return nil
	}
	until := user.LastDownloadAt.Add(g.cooldown)
	if !g.now().Before(until) {
		return nil
	}
	return &until
}

// Admit performs the admission transaction. For admins it always admits
// without touching the clock. For everyone else the clock is advanced with a
// single conditional update, so two concurrent requests inside one window
// cannot both be admitted.
func (g *Gate) Admit(ctx context.Context, user *models.User) (Decision, error) {
	if user.IsAdmin() {
		return Decision{Admitted: true}, nil
	}

	now := g.now()
	threshold := now.Add(-g.cooldown)
	advanced, prev, err := g.clock.Advance(ctx, user.ID, now, threshold)
	if err != nil {
		return Decision{}, err
	}
	if !advanced {
		until := now.Add(g.cooldown)
		if prev != nil {
			until = prev.Add(g.cooldown)
		}
		return Decision{CooldownUntil: until}, nil
	}
	return Decision{Admitted: true, Advanced: true, Previous: prev}, nil
}

// Restore rolls an admitted advance back after a failed download so the
// failure does not cost the user their cooldown window. Admissions that never
// wrote the clock (admin bypass) restore nothing.
func (g *Gate) Restore(ctx context.Context, userID uint, d Decision) error {
	if !d.Advanced {
		return nil
	}
	return g.clock.Set(ctx, userID, d.Previous)
}

// Reset clears the user's cooldown. Returns false when there was no active
// clock to clear, which the reset endpoint reports back to the caller.
func (g *Gate) Reset(ctx context.Context, userID uint) (bool, error) {
	return g.clock.Clear(ctx, userID)
}
