package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// IdentityService implements ports.IdentityService.
type IdentityService struct {
	repo          ports.UserRepository
	hasher        ports.PasswordHasher
	tokenProvider ports.TokenProvider
}

func NewIdentityService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	token ports.TokenProvider,
) *IdentityService {
	return &IdentityService{
		repo:          repo,
		hasher:        hasher,
		tokenProvider: token,
	}
}

// --- AUTHENTICATION ---

func (s *IdentityService) Signup(ctx context.Context, cmd ports.SignupCmd) (*domain.User, error) {
	// 1. Règles de saisie
	if fields := domain.ValidateSignup(cmd.Email, cmd.Name, cmd.Password); len(fields) > 0 {
		return nil, domain.Validation("Validation failed.", fields...)
	}

	// 2. Email déjà connu ? On échoue tôt
	// L'index unique protège toujours contre deux inscriptions simultanées
	_, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(cmd.Email))
	switch {
	case err == nil:
		return nil, domain.ErrEmailAlreadyExists
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	// 3. Hachage du mot de passe (bcrypt)
	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, domain.Internal("hashing failed", err)
	}

	// 4. Persistance
	user := domain.NewUser(cmd.Email, cmd.Name, hash)
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("repository save failed: %w", err)
	}
	return user, nil
}

func (s *IdentityService) Login(ctx context.Context, cmd ports.LoginCmd) (*ports.AuthResult, error) {
	// 1. Recherche par email
	// Email inconnu et mauvais mot de passe donnent la même erreur au client
	user, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(cmd.Email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	// 2. Vérification du mot de passe
	if err := s.hasher.Compare(user.PasswordHash, cmd.Password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	// 3. Émission du JWT
	token, expiresAt, err := s.tokenProvider.Issue(user.ID, user.Email)
	if err != nil {
		return nil, domain.Internal("login token generation failed", err)
	}

	return &ports.AuthResult{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *IdentityService) ValidateToken(ctx context.Context, token string) (*ports.TokenClaims, error) {
	return s.tokenProvider.Validate(token)
}

// --- USER ---

func (s *IdentityService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.GetByID(ctx, userID)
}

func (s *IdentityService) GetStatus(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

func (s *IdentityService) UpdateStatus(ctx context.Context, userID, status string) (*domain.User, error) {
	// 1. Règles de saisie
	if fields := domain.ValidateStatus(status); len(fields) > 0 {
		return nil, domain.Validation("Validation failed.", fields...)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 2. Mise à jour
	user.SetStatus(status)
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update status failed: %w", err)
	}
	return user, nil
}
