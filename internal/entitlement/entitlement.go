// Package entitlement decides whether a user currently has trial or paid
// access to gated reads. Nothing here is stored; every answer is recomputed
// from the user's timestamps and the evaluator's clock.
package entitlement

import (
	"time"

	"github.com/ajirinow/backend/internal/core/datamodel/user"
)

// SubscriptionTerm is the access bought by one completed subscription payment.
const SubscriptionTerm = 30 * 24 * time.Hour

// Window is the pair of stored timestamps entitlement is derived from.
type Window struct {
	TrialEnds       *time.Time
	SubscriptionEnd *time.Time
}

func WindowOf(u *user.User) Window {
	if u == nil {
		return Window{}
	}
	return Window{TrialEnds: u.TrialEnds, SubscriptionEnd: u.SubscriptionEnd}
}

type Status struct {
	OnTrial         bool       `json:"is_on_trial"`
	Subscribed      bool       `json:"is_subscribed"`
	Entitled        bool       `json:"is_entitled"`
	TrialEnds       *time.Time `json:"trial_ends,omitempty"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
}

type Evaluator struct {
	now func() time.Time
}

func NewEvaluator(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: now}
}

func (e *Evaluator) Now() time.Time {
	return e.now().UTC()
}

// OnTrial: trial_ends is set and now <= trial_ends.
func (e *Evaluator) OnTrial(w Window) bool {
	return w.TrialEnds != nil && !e.Now().After(*w.TrialEnds)
}

// Subscribed compares calendar dates: the last day of the term is included.
func (e *Evaluator) Subscribed(w Window) bool {
	if w.SubscriptionEnd == nil {
		return false
	}
	return !DateOf(e.Now()).After(DateOf(*w.SubscriptionEnd))
}

func (e *Evaluator) Entitled(w Window) bool {
	return e.OnTrial(w) || e.Subscribed(w)
}

func (e *Evaluator) Evaluate(w Window) Status {
	onTrial := e.OnTrial(w)
	subscribed := e.Subscribed(w)
	return Status{
		OnTrial:         onTrial,
		Subscribed:      subscribed,
		Entitled:        onTrial || subscribed,
		TrialEnds:       w.TrialEnds,
		SubscriptionEnd: w.SubscriptionEnd,
	}
}

// NextSubscriptionEnd returns the subscription_end produced by one completed
// payment settled at now. The default resets to today + 30 days; stack extends
// a still running subscription instead.
func NextSubscriptionEnd(now time.Time, current *time.Time, stack bool) time.Time {
	from := DateOf(now.UTC())
	if stack && current != nil {
		if cur := DateOf(current.UTC()); cur.After(from) {
			from = cur
		}
	}
	return from.Add(SubscriptionTerm)
}

// TrialEnd is the end of the trial granted to a fundi registering at now.
func TrialEnd(now time.Time) time.Time {
	return now.Add(user.TrialPeriod)
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
