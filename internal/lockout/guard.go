package lockout

import (
	"time"

	"account-service/internal/models"
)

type Policy struct {
	MaxFailedAttempts int
	Window            time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxFailedAttempts: 5,
		Window:            15 * time.Minute,
	}
}

// Guard derives the locked/unlocked verdict from a user's failure
// counters and applies the two state transitions. It performs no I/O;
// persistence of the mutated fields is the repository's job and must
// happen before the rejection is returned to the caller.
type Guard struct {
	policy Policy
	now    func() time.Time
}

func NewGuard(policy Policy) *Guard {
	return &Guard{policy: policy, now: time.Now}
}

// IsLocked reports whether the account is inside its lockout window:
// at least MaxFailedAttempts consecutive failures, the last of which
// is younger than Window. An old failure streak stops blocking once
// the window elapses; the counter itself is only cleared by a
// subsequent successful login.
func (g *Guard) IsLocked(user *models.User) bool {
	if user.FailedAttempts < g.policy.MaxFailedAttempts {
		return false
	}
	if user.LastFailedAt == nil {
		return false
	}
	return g.now().Sub(*user.LastFailedAt) < g.policy.Window
}

// RecordFailure applies the failed-attempt transition.
func (g *Guard) RecordFailure(user *models.User) {
	now := g.now().UTC()
	user.FailedAttempts++
	user.LastFailedAt = &now
}

// RecordSuccess clears the failure streak and stamps the login time.
func (g *Guard) RecordSuccess(user *models.User) {
	now := g.now().UTC()
	user.FailedAttempts = 0
	user.LastFailedAt = nil
	user.LastLoginAt = &now
}
