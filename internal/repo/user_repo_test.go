package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func TestCreateUser_Error_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := CreateUser(context.Background(), db, "ann"); err == nil {
		t.Fatalf("expected error when users table is missing")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	ctx := context.Background()

	u, err := CreateUser(ctx, db, "ann")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Name != "ann" || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected user: %+v", u)
	}

	got, err := GetUser(ctx, db, u.ID)
	if err != nil || got.Name != "ann" {
		t.Fatalf("GetUser = %+v, %v", got, err)
	}
	if _, err := GetUser(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchLastSeen(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	ctx := context.Background()

	u, err := CreateUser(ctx, db, "bob")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := TouchLastSeen(ctx, db, u.ID, at); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	got, _ := GetUser(ctx, db, u.ID)
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(at) {
		t.Fatalf("LastSeenAt = %v; want %v", got.LastSeenAt, at)
	}

	if err := TouchLastSeen(ctx, db, "ghost", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
