package listing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ajirinow/backend/internal"
	datamodel "github.com/ajirinow/backend/internal/core/datamodel/listing"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
	"github.com/ajirinow/backend/pkg/logger"
)

// RepositoryAPI reads take now so that lapsed listings are switched off in
// storage before they are returned.
type RepositoryAPI interface {
	CreateJob(ctx context.Context, j *datamodel.Job) error
	ListActiveJobs(ctx context.Context, now time.Time) ([]datamodel.Job, error)
	ListJobsByOwner(ctx context.Context, ownerID int64, now time.Time) ([]datamodel.Job, error)
	GetJob(ctx context.Context, id int64, now time.Time) (*datamodel.Job, error)
	MarkJobFilled(ctx context.Context, id int64) error
	UpdateJob(ctx context.Context, id int64, changes map[string]interface{}) error
	DeleteJob(ctx context.Context, id int64) error

	CreateAd(ctx context.Context, a *datamodel.Ad) error
	ListActiveAds(ctx context.Context, now time.Time) ([]datamodel.Ad, error)
	ListAdsByOwner(ctx context.Context, ownerID int64, now time.Time) ([]datamodel.Ad, error)
	GetAd(ctx context.Context, id int64, now time.Time) (*datamodel.Ad, error)
	UpdateAd(ctx context.Context, id int64, changes map[string]interface{}) error
	DeleteAd(ctx context.Context, id int64) error

	EntitlementWindow(ctx context.Context, userID int64) (entitlement.Window, error)
}

type ServiceAPI interface {
	CreateJob(ctx context.Context, requester *internal.User, req CreateJobRequest) (*JobResponse, error)
	ListJobs(ctx context.Context, requester *internal.User) ([]JobResponse, error)
	MyJobs(ctx context.Context, requester *internal.User) ([]JobResponse, error)
	GetJob(ctx context.Context, requester *internal.User, id int64) (*JobResponse, error)
	MarkJobFilled(ctx context.Context, requester *internal.User, id int64) (*JobResponse, error)
	UpdateJob(ctx context.Context, requester *internal.User, id int64, req UpdateJobRequest) (*JobResponse, error)
	DeleteJob(ctx context.Context, requester *internal.User, id int64) error

	CreateAd(ctx context.Context, requester *internal.User, req CreateAdRequest) (*AdResponse, error)
	ListAds(ctx context.Context) ([]AdResponse, error)
	MyAds(ctx context.Context, requester *internal.User) ([]AdResponse, error)
	GetAd(ctx context.Context, requester *internal.User, id int64) (*AdResponse, error)
	UpdateAd(ctx context.Context, requester *internal.User, id int64, req UpdateAdRequest) (*AdResponse, error)
	DeleteAd(ctx context.Context, requester *internal.User, id int64) error
}

type Service struct {
	repo      RepositoryAPI
	evaluator *entitlement.Evaluator
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, evaluator *entitlement.Evaluator, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	if evaluator == nil {
		evaluator = entitlement.NewEvaluator(nil)
	}
	return &Service{repo: repo, evaluator: evaluator, logger: lg}
}

func (s *Service) CreateJob(ctx context.Context, requester *internal.User, req CreateJobRequest) (*JobResponse, error) {
	if requester == nil || !requester.HasRole(user.RoleClient, user.RoleAdvertiser) {
		return nil, internal.ErrRoleNotAllowed
	}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	j := &datamodel.Job{
		ClientID:    requester.ID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
	}
	if err := s.repo.CreateJob(ctx, j); err != nil {
		return nil, internal.NewInternalError("failed to create job", err)
	}

	logger.FromOr(ctx, s.logger).Info("job created", "job_id", j.ID, "client_id", j.ClientID)
	resp := ToJobResponse(*j)
	return &resp, nil
}

// ListJobs returns the active job board. Clients and advertisers always see
// it; fundis need a running trial or subscription.
func (s *Service) ListJobs(ctx context.Context, requester *internal.User) ([]JobResponse, error) {
	if requester == nil {
		return []JobResponse{}, nil
	}
	switch requester.Role {
	case user.RoleClient, user.RoleAdvertiser:
	case user.RoleFundi:
		if err := s.requireEntitled(ctx, requester.ID); err != nil {
			return nil, err
		}
	default:
		return []JobResponse{}, nil
	}

	jobs, err := s.repo.ListActiveJobs(ctx, s.evaluator.Now())
	if err != nil {
		return nil, internal.NewInternalError("failed to list jobs", err)
	}
	return ToJobResponses(jobs), nil
}

func (s *Service) MyJobs(ctx context.Context, requester *internal.User) ([]JobResponse, error) {
	if requester == nil {
		return nil, internal.ErrRoleNotAllowed
	}
	jobs, err := s.repo.ListJobsByOwner(ctx, requester.ID, s.evaluator.Now())
	if err != nil {
		return nil, internal.NewInternalError("failed to list jobs", err)
	}
	return ToJobResponses(jobs), nil
}

// GetJob shows owners their job in any state. Anyone else only sees active
// jobs, under the same rules as the job board.
func (s *Service) GetJob(ctx context.Context, requester *internal.User, id int64) (*JobResponse, error) {
	j, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester == nil || j.ClientID != requester.ID {
		if !j.IsActive {
			return nil, internal.ErrJobNotFound
		}
		if requester != nil && requester.HasRole(user.RoleFundi) {
			if err := s.requireEntitled(ctx, requester.ID); err != nil {
				return nil, err
			}
		}
	}
	resp := ToJobResponse(*j)
	return &resp, nil
}

// MarkJobFilled closes a job; a filled job is never active again.
func (s *Service) MarkJobFilled(ctx context.Context, requester *internal.User, id int64) (*JobResponse, error) {
	j, err := s.ownedJob(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkJobFilled(ctx, id); err != nil {
		return nil, internal.NewInternalError("failed to update job", err)
	}
	j.IsFilled = true
	j.IsActive = false

	logger.FromOr(ctx, s.logger).Info("job filled", "job_id", id)
	resp := ToJobResponse(*j)
	return &resp, nil
}

// UpdateJob edits the owner's job in any state without touching whether it
// is active or which payment funded it.
func (s *Service) UpdateJob(ctx context.Context, requester *internal.User, id int64, req UpdateJobRequest) (*JobResponse, error) {
	if _, err := s.ownedJob(ctx, requester, id); err != nil {
		return nil, err
	}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	if changes := req.Changes(); len(changes) > 0 {
		if err := s.repo.UpdateJob(ctx, id, changes); err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return nil, internal.ErrJobNotFound
			}
			return nil, internal.NewInternalError("failed to update job", err)
		}
		logger.FromOr(ctx, s.logger).Info("job updated", "job_id", id)
	}

	j, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToJobResponse(*j)
	return &resp, nil
}

func (s *Service) DeleteJob(ctx context.Context, requester *internal.User, id int64) error {
	if _, err := s.ownedJob(ctx, requester, id); err != nil {
		return err
	}
	if err := s.repo.DeleteJob(ctx, id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return internal.ErrJobNotFound
		}
		return internal.NewInternalError("failed to delete job", err)
	}
	logger.FromOr(ctx, s.logger).Info("job deleted", "job_id", id)
	return nil
}

func (s *Service) CreateAd(ctx context.Context, requester *internal.User, req CreateAdRequest) (*AdResponse, error) {
	if requester == nil {
		return nil, internal.ErrRoleNotAllowed
	}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	a := &datamodel.Ad{
		ClientID:    requester.ID,
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Link:        req.Link,
	}
	if err := s.repo.CreateAd(ctx, a); err != nil {
		return nil, internal.NewInternalError("failed to create ad", err)
	}

	logger.FromOr(ctx, s.logger).Info("ad created", "ad_id", a.ID, "client_id", a.ClientID)
	resp := ToAdResponse(*a)
	return &resp, nil
}

func (s *Service) ListAds(ctx context.Context) ([]AdResponse, error) {
	ads, err := s.repo.ListActiveAds(ctx, s.evaluator.Now())
	if err != nil {
		return nil, internal.NewInternalError("failed to list ads", err)
	}
	return ToAdResponses(ads), nil
}

func (s *Service) MyAds(ctx context.Context, requester *internal.User) ([]AdResponse, error) {
	if requester == nil {
		return nil, internal.ErrRoleNotAllowed
	}
	ads, err := s.repo.ListAdsByOwner(ctx, requester.ID, s.evaluator.Now())
	if err != nil {
		return nil, internal.NewInternalError("failed to list ads", err)
	}
	return ToAdResponses(ads), nil
}

func (s *Service) GetAd(ctx context.Context, requester *internal.User, id int64) (*AdResponse, error) {
	a, err := s.loadAd(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive && (requester == nil || a.ClientID != requester.ID) {
		return nil, internal.ErrAdNotFound
	}
	resp := ToAdResponse(*a)
	return &resp, nil
}

func (s *Service) UpdateAd(ctx context.Context, requester *internal.User, id int64, req UpdateAdRequest) (*AdResponse, error) {
	if _, err := s.ownedAd(ctx, requester, id); err != nil {
		return nil, err
	}
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}
	if changes := req.Changes(); len(changes) > 0 {
		if err := s.repo.UpdateAd(ctx, id, changes); err != nil {
			if errors.Is(err, ErrAdNotFound) {
				return nil, internal.ErrAdNotFound
			}
			return nil, internal.NewInternalError("failed to update ad", err)
		}
		logger.FromOr(ctx, s.logger).Info("ad updated", "ad_id", id)
	}

	a, err := s.loadAd(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToAdResponse(*a)
	return &resp, nil
}

func (s *Service) DeleteAd(ctx context.Context, requester *internal.User, id int64) error {
	if _, err := s.ownedAd(ctx, requester, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAd(ctx, id); err != nil {
		if errors.Is(err, ErrAdNotFound) {
			return internal.ErrAdNotFound
		}
		return internal.NewInternalError("failed to delete ad", err)
	}
	logger.FromOr(ctx, s.logger).Info("ad deleted", "ad_id", id)
	return nil
}

func (s *Service) ownedJob(ctx context.Context, requester *internal.User, id int64) (*datamodel.Job, error) {
	j, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester == nil || j.ClientID != requester.ID {
		return nil, internal.ErrNotOwner
	}
	return j, nil
}

func (s *Service) ownedAd(ctx context.Context, requester *internal.User, id int64) (*datamodel.Ad, error) {
	a, err := s.loadAd(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester == nil || a.ClientID != requester.ID {
		return nil, internal.ErrNotOwner
	}
	return a, nil
}

func (s *Service) loadAd(ctx context.Context, id int64) (*datamodel.Ad, error) {
	a, err := s.repo.GetAd(ctx, id, s.evaluator.Now())
	if err != nil {
		if errors.Is(err, ErrAdNotFound) {
			return nil, internal.ErrAdNotFound
		}
		return nil, internal.NewInternalError("failed to load ad", err)
	}
	return a, nil
}

func (s *Service) loadJob(ctx context.Context, id int64) (*datamodel.Job, error) {
	j, err := s.repo.GetJob(ctx, id, s.evaluator.Now())
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, internal.ErrJobNotFound
		}
		return nil, internal.NewInternalError("failed to load job", err)
	}
	return j, nil
}

func (s *Service) requireEntitled(ctx context.Context, userID int64) error {
	w, err := s.repo.EntitlementWindow(ctx, userID)
	if err != nil {
		return internal.NewInternalError("failed to load entitlement", err)
	}
	if !s.evaluator.Entitled(w) {
		logger.FromOr(ctx, s.logger).Info("job board refused", "user_id", userID, "reason", "not entitled")
		return internal.ErrSubscriptionRequired
	}
	return nil
}
