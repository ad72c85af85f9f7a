package v1

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/profile-service/internal/core/domain"
	"github.com/duynhne/profile-service/middleware"
)

// UserService implements the record operations on top of a document repository
type UserService struct {
	repo domain.UserRepository
}

// NewUserService creates a new user service
func NewUserService(repo domain.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// CreateUser validates the request and stores a new record under a fresh id.
// Nothing is stored when validation fails.
func (s *UserService) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "user.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	user := &domain.User{
		ID:      domain.NewID(),
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Gallery: []string{},
	}

	if err := user.ValidationErr(); err != nil {
		span.SetAttributes(attribute.Bool("user.created", false))
		return nil, err
	}

	if err := s.repo.Insert(ctx, user); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("user.created", true),
	)
	span.AddEvent("user.created")
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "user.get", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", id),
	))
	defer span.End()

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.SetAttributes(attribute.Bool("user.found", false))
		return nil, err
	}

	span.SetAttributes(attribute.Bool("user.found", true))
	return user, nil
}

// SetAvatar points the record's avatar at a stored filename
func (s *UserService) SetAvatar(ctx context.Context, id, filename string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "user.set_avatar", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", id),
	))
	defer span.End()

	return s.mutate(ctx, span, id, func(u *domain.User) {
		u.Avatar = filename
	})
}

// SetGallery replaces the record's gallery with filenames, in order. An empty
// list clears the gallery.
func (s *UserService) SetGallery(ctx context.Context, id string, filenames []string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "user.set_gallery", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", id),
		attribute.Int("gallery.size", len(filenames)),
	))
	defer span.End()

	return s.mutate(ctx, span, id, func(u *domain.User) {
		u.Gallery = append(make([]string, 0, len(filenames)), filenames...)
	})
}

// mutate is load, apply, validate, save. Concurrent calls for one id are not
// serialized; the last save wins.
func (s *UserService) mutate(ctx context.Context, span trace.Span, id string, apply func(*domain.User)) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.SetAttributes(attribute.Bool("user.found", false))
		return nil, err
	}

	apply(user)

	if err := user.ValidationErr(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, user); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save user %q: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("user.updated", true))
	return user, nil
}
