package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/auth"
	"github.com/ajirinow/backend/internal/core/common/validation"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
	"github.com/ajirinow/backend/pkg/logger"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrPhoneTaken = errors.New("phone number already registered")
)

type RepositoryAPI interface {
	// Create stores the user and its role profile in one transaction.
	Create(ctx context.Context, u *datamodel.User, fundi *datamodel.FundiProfile, client *datamodel.ClientProfile) error
	GetByID(ctx context.Context, id int64) (*datamodel.User, error)
	GetByPhoneAndIDNumber(ctx context.Context, phone, idNumber string) (*datamodel.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	GetFundiProfile(ctx context.Context, userID int64) (*datamodel.FundiProfile, error)
	UpdateFundiProfile(ctx context.Context, userID int64, changes map[string]interface{}) (*datamodel.FundiProfile, error)
	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, userID int64) (*Client, error)
	// UpdateClient applies user and client profile changes in one transaction.
	UpdateClient(ctx context.Context, userID int64, userChanges, profileChanges map[string]interface{}) error
	// Delete removes the account with its profiles and listings. Its
	// payments are kept with no payer.
	Delete(ctx context.Context, userID int64) error
}

// Client is a client account joined with its profile.
type Client struct {
	User    datamodel.User
	Profile *datamodel.ClientProfile
}

type ServiceAPI interface {
	Register(ctx context.Context, req RegisterRequest) (*UserResponse, error)
	Me(ctx context.Context, userID int64) (*UserResponse, error)
	GetFundiProfile(ctx context.Context, requester *internal.User) (*FundiProfileResponse, error)
	UpdateFundiProfile(ctx context.Context, requester *internal.User, req UpdateFundiProfileRequest) (*FundiProfileResponse, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	DeleteAccount(ctx context.Context, requester *internal.User) error
	ListClients(ctx context.Context) ([]PublicClientResponse, error)
	GetClient(ctx context.Context, requester *internal.User) (*ClientResponse, error)
	UpdateClient(ctx context.Context, requester *internal.User, req UpdateClientRequest) (*ClientResponse, error)
}

type Service struct {
	repo       RepositoryAPI
	evaluator  *entitlement.Evaluator
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, evaluator *entitlement.Evaluator, bcryptCost int, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	if evaluator == nil {
		evaluator = entitlement.NewEvaluator(nil)
	}
	return &Service{repo: repo, evaluator: evaluator, bcryptCost: bcryptCost, logger: lg}
}

// Register creates an account. Fundis start a trial and get a profile;
// clients get a client profile.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	u := &datamodel.User{
		PhoneNumber:  validation.NormalizePhone(req.PhoneNumber),
		Name:         req.Name,
		IDNumber:     req.IDNumber,
		Role:         req.Role,
		PasswordHash: hash,
		IsActive:     true,
	}

	var (
		fundi  *datamodel.FundiProfile
		client *datamodel.ClientProfile
	)
	switch req.Role {
	case datamodel.RoleFundi:
		now := s.evaluator.Now()
		trialEnds := entitlement.TrialEnd(now)
		u.TrialStarted = &now
		u.TrialEnds = &trialEnds
		fundi = &datamodel.FundiProfile{
			Skills:      req.Skills,
			Location:    req.Location,
			RateNote:    req.RateNote,
			IsAvailable: true,
			ShowContact: true,
		}
	case datamodel.RoleClient:
		client = &datamodel.ClientProfile{RoleNote: req.RoleNote}
	}

	if err := s.repo.Create(ctx, u, fundi, client); err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			return nil, internal.ErrPhoneTaken
		}
		return nil, internal.NewInternalError("failed to register user", err)
	}

	logger.FromOr(ctx, s.logger).Info("user registered", "user_id", u.ID, "role", u.Role)
	return ToUserResponse(u, s.evaluator.Evaluate(entitlement.WindowOf(u))), nil
}

func (s *Service) Me(ctx context.Context, userID int64) (*UserResponse, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}
	return ToUserResponse(u, s.evaluator.Evaluate(entitlement.WindowOf(u))), nil
}

func (s *Service) GetFundiProfile(ctx context.Context, requester *internal.User) (*FundiProfileResponse, error) {
	if requester == nil || !requester.HasRole(datamodel.RoleFundi) {
		return nil, internal.ErrRoleNotAllowed
	}
	p, err := s.repo.GetFundiProfile(ctx, requester.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrFundiNotFound
		}
		return nil, internal.NewInternalError("failed to load fundi profile", err)
	}
	return ToFundiProfileResponse(p), nil
}

// UpdateFundiProfile applies a partial update; absent fields are untouched.
func (s *Service) UpdateFundiProfile(ctx context.Context, requester *internal.User, req UpdateFundiProfileRequest) (*FundiProfileResponse, error) {
	if requester == nil || !requester.HasRole(datamodel.RoleFundi) {
		return nil, internal.ErrRoleNotAllowed
	}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	changes := req.Changes()
	if len(changes) == 0 {
		return s.GetFundiProfile(ctx, requester)
	}

	p, err := s.repo.UpdateFundiProfile(ctx, requester.ID, changes)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrFundiNotFound
		}
		return nil, internal.NewInternalError("failed to update fundi profile", err)
	}
	return ToFundiProfileResponse(p), nil
}

// ResetPassword sets a new password for the account matching both the phone
// number and the national id number.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if appErr := req.Validate(); appErr != nil {
		return appErr
	}

	u, err := s.repo.GetByPhoneAndIDNumber(ctx, validation.NormalizePhone(req.PhoneNumber), req.IDNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.NewValidationError("Invalid phone number or ID number", internal.ErrCodeInvalidCredentials)
		}
		return internal.NewInternalError("failed to load user", err)
	}

	hash, err := auth.HashPassword(req.NewPassword, s.bcryptCost)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return internal.NewInternalError("failed to reset password", err)
	}

	logger.FromOr(ctx, s.logger).Info("password reset", "user_id", u.ID)
	return nil
}

// DeleteAccount removes the caller's own account. Settled payments stay in
// the ledger.
func (s *Service) DeleteAccount(ctx context.Context, requester *internal.User) error {
	if requester == nil {
		return internal.ErrRoleNotAllowed
	}
	if err := s.repo.Delete(ctx, requester.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("failed to delete account", err)
	}
	logger.FromOr(ctx, s.logger).Info("account deleted", "user_id", requester.ID, "role", requester.Role)
	return nil
}

// ListClients is the public client directory. Contact details are not part
// of it.
func (s *Service) ListClients(ctx context.Context) ([]PublicClientResponse, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list clients", err)
	}
	out := make([]PublicClientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, ToPublicClientResponse(c))
	}
	return out, nil
}

func (s *Service) GetClient(ctx context.Context, requester *internal.User) (*ClientResponse, error) {
	if requester == nil || !requester.HasRole(datamodel.RoleClient) {
		return nil, internal.ErrRoleNotAllowed
	}
	c, err := s.repo.GetClient(ctx, requester.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, internal.NewInternalError("failed to load client", err)
	}
	return ToClientResponse(c, s.evaluator.Evaluate(entitlement.WindowOf(&c.User))), nil
}

// UpdateClient edits the caller's name and client profile. Role, phone number
// and entitlement timestamps are not editable here.
func (s *Service) UpdateClient(ctx context.Context, requester *internal.User, req UpdateClientRequest) (*ClientResponse, error) {
	if requester == nil || !requester.HasRole(datamodel.RoleClient) {
		return nil, internal.ErrRoleNotAllowed
	}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	userChanges, profileChanges := req.Changes()
	if len(userChanges)+len(profileChanges) > 0 {
		if err := s.repo.UpdateClient(ctx, requester.ID, userChanges, profileChanges); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, internal.ErrUserNotFound
			}
			return nil, internal.NewInternalError("failed to update client", err)
		}
		logger.FromOr(ctx, s.logger).Info("client updated", "user_id", requester.ID)
	}
	return s.GetClient(ctx, requester)
}
