package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajirinow/backend/internal"
)

var ErrCandidateNotFound = errors.New("fundi not found")

// Candidate is a fundi profile joined with its owner's entitlement timestamps.
type Candidate struct {
	UserID          int64      `db:"user_id"`
	Name            string     `db:"name"`
	PhoneNumber     string     `db:"phone_number"`
	TrialEnds       *time.Time `db:"trial_ends"`
	SubscriptionEnd *time.Time `db:"subscription_end"`
	Skills          string     `db:"skills"`
	Location        string     `db:"location"`
	RateNote        string     `db:"rate_note"`
	IsAvailable     bool       `db:"is_available"`
	ShowContact     bool       `db:"show_contact"`
}

// FundiCard is the public view of a fundi.
type FundiCard struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Skills      string  `json:"skills"`
	Location    string  `json:"location"`
	RateNote    string  `json:"rate_note"`
	IsAvailable bool    `json:"is_available"`
	PhoneNumber *string `json:"phone_number"`
}

func (c Candidate) Card() FundiCard {
	card := FundiCard{
		ID:          c.UserID,
		Name:        c.Name,
		Skills:      c.Skills,
		Location:    c.Location,
		RateNote:    c.RateNote,
		IsAvailable: c.IsAvailable,
	}
	if c.ShowContact {
		phone := c.PhoneNumber
		card.PhoneNumber = &phone
	}
	return card
}

type CandidateRepository interface {
	ListFundiCandidates(ctx context.Context) ([]Candidate, error)
	GetFundiCandidate(ctx context.Context, userID int64) (*Candidate, error)
}

// Directory builds the public fundi listing. Entitlement is applied as an
// in-memory filter over every candidate.
type Directory struct {
	repo      CandidateRepository
	evaluator *Evaluator
	logger    *slog.Logger
}

func NewDirectory(repo CandidateRepository, evaluator *Evaluator, logger *slog.Logger) *Directory {
	return &Directory{repo: repo, evaluator: evaluator, logger: logger}
}

func (d *Directory) Visible(ctx context.Context) ([]FundiCard, error) {
	candidates, err := d.repo.ListFundiCandidates(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to load fundi profiles", err)
	}

	// TODO: push the trial/subscription predicate into the query once users
	// carries an index on trial_ends and subscription_end.
	cards := make([]FundiCard, 0, len(candidates))
	for _, c := range candidates {
		if !d.evaluator.Entitled(Window{TrialEnds: c.TrialEnds, SubscriptionEnd: c.SubscriptionEnd}) {
			continue
		}
		cards = append(cards, c.Card())
	}

	d.logger.Debug("fundi directory built", "candidates", len(candidates), "visible", len(cards))
	return cards, nil
}

func (d *Directory) Card(ctx context.Context, userID int64) (*FundiCard, error) {
	c, err := d.repo.GetFundiCandidate(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrCandidateNotFound) {
			return nil, internal.ErrFundiNotFound
		}
		return nil, internal.NewInternalError("failed to load fundi profile", fmt.Errorf("fundi %d: %w", userID, err))
	}
	card := c.Card()
	return &card, nil
}
