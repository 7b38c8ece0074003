package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

type CreateUserInput struct {
	Email    string     `json:"email"`
	FullName string     `json:"fullName"`
	Role     model.Role `json:"role"`
}

// AdminService creates and removes accounts on behalf of administrators.
//
// TWO STORES, NO TRANSACTION:
// An account is an identity in the gateway plus a profile row. The two
// writes cannot share a transaction, so CreateUser deletes the identity it
// just made if the profile insert fails. An identity left without a
// profile by an earlier failure is reused rather than reported as taken.
type AdminService struct {
	identities gateway.IdentityAdmin
	profiles   repository.ProfileRepository
	logger     *slog.Logger
	now        func() time.Time
}

func NewAdminService(identities gateway.IdentityAdmin, profiles repository.ProfileRepository, logger *slog.Logger) *AdminService {
	return &AdminService{identities: identities, profiles: profiles, logger: logger, now: time.Now}
}

// requireAdmin re-reads the actor's profile rather than trusting the
// route gate, so the rule holds for any caller.
func (s *AdminService) requireAdmin(ctx context.Context, actor *model.Identity, action string) error {
	if err := requireIdentity(actor, action); err != nil {
		return err
	}
	profile, err := s.profiles.GetProfile(ctx, actor.ID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("checking administrator role: %w", err)
	}
	if profile == nil || profile.Role != model.RoleAdmin {
		return apperror.Forbidden(fmt.Sprintf("Only administrators can %s", action))
	}
	return nil
}

func (s *AdminService) CreateUser(ctx context.Context, actor *model.Identity, in CreateUserInput) (*model.UserWithProfile, error) {
	if err := s.requireAdmin(ctx, actor, "create users"); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	if !in.Role.Valid() {
		return nil, apperror.ValidationFailed("role", "role must be admin or user")
	}

	user, err := s.provision(ctx, in)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("id", user.ID),
		slog.String("role", string(user.Role)),
		slog.String("by", actor.ID),
	)
	return user, nil
}

// CreateFirstAdmin needs no actor. It only works while no profile exists.
func (s *AdminService) CreateFirstAdmin(ctx context.Context, email, fullName string) (*model.UserWithProfile, error) {
	count, err := s.profiles.CountProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking users: %w", err)
	}
	if count > 0 {
		return nil, apperror.Forbidden("Cannot create first admin: users already exist")
	}

	user, err := s.provision(ctx, CreateUserInput{Email: email, FullName: fullName, Role: model.RoleAdmin})
	if err != nil {
		return nil, err
	}

	s.logger.Info("first admin created", slog.String("id", user.ID))
	return user, nil
}

// provision creates (or adopts) the identity and inserts its profile.
func (s *AdminService) provision(ctx context.Context, in CreateUserInput) (*model.UserWithProfile, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, apperror.ValidationFailed("fullName", "Full name is required")
	}

	identity, created, err := s.identityFor(ctx, email, fullName)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	profile := &model.UserProfile{
		ID:        identity.ID,
		FullName:  fullName,
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if created {
			s.compensate(ctx, identity.ID)
		}
		return nil, fmt.Errorf("creating user profile: %w", err)
	}

	return &model.UserWithProfile{
		ID:        identity.ID,
		Email:     identity.Email,
		FullName:  profile.FullName,
		Role:      profile.Role,
		CreatedAt: profile.CreatedAt,
	}, nil
}

// identityFor returns the identity for email, creating it if needed.
// created reports whether this call made it.
func (s *AdminService) identityFor(ctx context.Context, email, fullName string) (*model.Identity, bool, error) {
	existing, err := s.identities.FindIdentityByEmail(ctx, email)
	switch {
	case err == nil:
		_, perr := s.profiles.GetProfile(ctx, existing.ID)
		if perr == nil {
			return nil, false, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "A user with this email address has already been registered",
				Field:   "email",
			}
		}
		if !errors.Is(perr, apperror.ErrNotFound) {
			return nil, false, fmt.Errorf("checking existing profile: %w", perr)
		}
		s.logger.Warn("reusing identity without profile", slog.String("id", existing.ID))
		return existing, false, nil

	case !errors.Is(err, apperror.ErrNotFound):
		return nil, false, fmt.Errorf("looking up identity: %w", err)
	}

	identity, err := s.identities.CreateIdentity(ctx, email, fullName)
	if err != nil {
		return nil, false, fmt.Errorf("creating user: %w", err)
	}
	return identity, true, nil
}

func (s *AdminService) compensate(ctx context.Context, id string) {
	if err := s.identities.DeleteIdentity(ctx, id); err != nil {
		s.logger.Error("failed to remove identity after profile insert failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("removed identity after profile insert failed", slog.String("id", id))
}

func (s *AdminService) DeleteUser(ctx context.Context, actor *model.Identity, id string) error {
	if err := s.requireAdmin(ctx, actor, "delete users"); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "user ID is required")
	}
	if id == actor.ID {
		return apperror.ValidationFailed("id", "You cannot delete your own account")
	}

	if err := s.identities.DeleteIdentity(ctx, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	// Gateways that cascade have already removed the profile.
	if err := s.profiles.DeleteProfile(ctx, id); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("deleting user profile: %w", err)
	}

	s.logger.Info("user deleted", slog.String("id", id), slog.String("by", actor.ID))
	return nil
}

func (s *AdminService) UpdateUserRole(ctx context.Context, actor *model.Identity, id string, role model.Role) error {
	if err := s.requireAdmin(ctx, actor, "update user roles"); err != nil {
		return err
	}
	if !role.Valid() {
		return apperror.ValidationFailed("role", "role must be admin or user")
	}
	if id == actor.ID && role != model.RoleAdmin {
		return apperror.ValidationFailed("role", "You cannot remove your own administrator role")
	}

	if err := s.profiles.UpdateRole(ctx, id, role); err != nil {
		return err
	}

	s.logger.Info("user role updated",
		slog.String("id", id),
		slog.String("role", string(role)),
		slog.String("by", actor.ID),
	)
	return nil
}

// ListUsers joins every profile with its identity's email, newest first.
func (s *AdminService) ListUsers(ctx context.Context, actor *model.Identity) ([]model.UserWithProfile, error) {
	if err := s.requireAdmin(ctx, actor, "view users"); err != nil {
		return nil, err
	}

	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	identities, err := s.identities.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}

	emails := make(map[string]string, len(identities))
	for _, id := range identities {
		emails[id.ID] = id.Email
	}

	users := make([]model.UserWithProfile, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, model.UserWithProfile{
			ID:        p.ID,
			Email:     emails[p.ID],
			FullName:  p.FullName,
			Role:      p.Role,
			CreatedAt: p.CreatedAt,
		})
	}
	return users, nil
}

// CountUsers backs the setup page: zero means the bootstrap window is open.
func (s *AdminService) CountUsers(ctx context.Context) (int, error) {
	count, err := s.profiles.CountProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}
