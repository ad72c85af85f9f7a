package psql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/profile-service/internal/core/domain"
	"github.com/duynhne/profile-service/middleware"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// document is the JSONB body stored per record. The id lives in its own column.
type document struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone,omitempty"`
	Address string   `json:"address,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Gallery []string `json:"gallery"`
}

// UserRepository implements domain.UserRepository as a JSONB document collection in PostgreSQL
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Insert stores a new user document
func (r *UserRepository) Insert(ctx context.Context, user *domain.User) error {
	ctx, span := startSpan(ctx, "repository.user.insert", user.ID)
	defer span.End()

	id, err := domain.ParseID(user.ID)
	if err != nil {
		return fmt.Errorf("insert user %q: %w", user.ID, err)
	}

	body, err := encode(user)
	if err != nil {
		return err
	}

	query := `INSERT INTO user_documents (id, doc) VALUES ($1, $2::jsonb)`
	if _, err := r.db.Exec(ctx, query, id.String(), body); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert user document: %w", err)
	}
	return nil
}

// GetByID retrieves a user document by id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := startSpan(ctx, "repository.user.get", id)
	defer span.End()

	parsed, err := domain.ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", id, err)
	}

	var raw []byte
	query := `SELECT doc FROM user_documents WHERE id = $1`
	if err := r.db.QueryRow(ctx, query, parsed.String()).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetAttributes(attribute.Bool("user.found", false))
			return nil, fmt.Errorf("get user %q: %w", id, domain.ErrUserNotFound)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("query user document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode user document %q: %w", id, err)
	}

	span.SetAttributes(attribute.Bool("user.found", true))
	return doc.toUser(parsed.String()), nil
}

// Update replaces the stored document for user.ID
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	ctx, span := startSpan(ctx, "repository.user.update", user.ID)
	defer span.End()

	id, err := domain.ParseID(user.ID)
	if err != nil {
		return fmt.Errorf("update user %q: %w", user.ID, err)
	}

	body, err := encode(user)
	if err != nil {
		return err
	}

	query := `UPDATE user_documents SET doc = $2::jsonb, updated_at = now() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id.String(), body)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update user document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update user %q: %w", user.ID, domain.ErrUserNotFound)
	}
	return nil
}

func startSpan(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return middleware.StartSpan(ctx, name, trace.WithAttributes(
		attribute.String("layer", "repository"),
		attribute.String("user.id", id),
	))
}

// encode renders the document body as text; simple protocol mode sends it as a jsonb literal.
func encode(user *domain.User) (string, error) {
	doc := document{
		Name:    user.Name,
		Email:   user.Email,
		Phone:   user.Phone,
		Address: user.Address,
		Avatar:  user.Avatar,
		Gallery: user.Gallery,
	}
	if doc.Gallery == nil {
		doc.Gallery = []string{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode user document: %w", err)
	}
	return string(raw), nil
}

func (d document) toUser(id string) *domain.User {
	gallery := d.Gallery
	if gallery == nil {
		gallery = []string{}
	}
	return &domain.User{
		ID:      id,
		Name:    d.Name,
		Email:   d.Email,
		Phone:   d.Phone,
		Address: d.Address,
		Avatar:  d.Avatar,
		Gallery: gallery,
	}
}
