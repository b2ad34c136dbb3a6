package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
	"github.com/jmoiron/sqlx"
)

const candidateColumns = `
	u.id AS user_id, u.name, u.phone_number, u.trial_ends, u.subscription_end,
	p.skills, p.location, p.rate_note, p.is_available, p.show_contact`

// CandidateRepository reads fundi profiles with plain SQL through sqlx.
type CandidateRepository struct {
	db *sqlx.DB
}

func NewCandidateRepository(db *sqlx.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

func (r *CandidateRepository) ListFundiCandidates(ctx context.Context) ([]entitlement.Candidate, error) {
	query := r.db.Rebind(`SELECT` + candidateColumns + `
		FROM fundi_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE u.role = ? AND u.is_active = ?
		ORDER BY u.id`)

	var out []entitlement.Candidate
	if err := r.db.SelectContext(ctx, &out, query, user.RoleFundi, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CandidateRepository) GetFundiCandidate(ctx context.Context, userID int64) (*entitlement.Candidate, error) {
	query := r.db.Rebind(`SELECT` + candidateColumns + `
		FROM fundi_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE u.id = ? AND u.role = ?`)

	var c entitlement.Candidate
	if err := r.db.GetContext(ctx, &c, query, userID, user.RoleFundi); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entitlement.ErrCandidateNotFound
		}
		return nil, err
	}
	return &c, nil
}
