package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// UserService manages the minimal user profiles the delivery core relies on.
type UserService struct {
	DB *gorm.DB

	// NameMaxLen caps stored names by rune length.
	NameMaxLen int
}

// NewUserService constructs a UserService with default limits.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db, NameMaxLen: 120}
}

// Create registers a user. Names are trimmed and clipped.
func (s *UserService) Create(ctx context.Context, name string) (*domain.User, error) {
	name = normalizeSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		name = string([]rune(name)[:s.NameMaxLen])
	}
	return repo.CreateUser(ctx, s.DB, name)
}

// Get returns the user or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, ErrUserNotFound
	}
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// TouchLastSeen records that the user was active at the given time.
func (s *UserService) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	err := repo.TouchLastSeen(ctx, s.DB, id, at)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
