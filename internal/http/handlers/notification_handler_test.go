package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
)

func TestCreateNotification(t *testing.T) {
	var got services.NewNotification
	h := New(Services{Notifications: stubNotifSvc{
		create: func(ctx context.Context, in services.NewNotification) (*domain.Notification, error) {
			got = in
			if in.Category == "gossip" {
				return nil, fmt.Errorf("%w: unknown category", services.ErrInvalidNotification)
			}
			return &domain.Notification{ID: "n1", RecipientID: in.RecipientID, InitiatorID: in.InitiatorID}, nil
		},
	}})
	r := newRouter(h)

	body := map[string]any{"recipient_id": "u2", "type": []string{"push"}, "category": "profile_follow"}
	w := do(r, http.MethodPost, "/notifications", "u1", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.InitiatorID != "u1" || got.RecipientID != "u2" || len(got.Types) != 1 {
		t.Fatalf("service input = %+v", got)
	}

	body["category"] = "gossip"
	if w := do(r, http.MethodPost, "/notifications", "u1", body); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid category: status=%d", w.Code)
	}
	if w := do(r, http.MethodPost, "/notifications", "u1", map[string]any{"recipient_id": "u2"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status=%d", w.Code)
	}
}

func TestListNotifications(t *testing.T) {
	var gotUser string
	h := New(Services{Notifications: stubNotifSvc{
		list: func(ctx context.Context, userID string, page, pageSize int) (services.NotificationPage, error) {
			gotUser = userID
			return services.NotificationPage{Items: []domain.Notification{}, Total: 0, Page: 0, TotalPages: 0}, nil
		},
	}})
	r := newRouter(h)

	if w := do(r, http.MethodGet, "/notifications", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status=%d", w.Code)
	}
	w := do(r, http.MethodGet, "/notifications?page=3", "u1", nil)
	if w.Code != http.StatusOK || gotUser != "u1" {
		t.Fatalf("status=%d user=%q", w.Code, gotUser)
	}
	resp := decode[map[string]any](t, w)
	if data, ok := resp["data"].([]any); !ok || len(data) != 0 {
		t.Fatalf("expected empty data array, got %#v", resp["data"])
	}
	if resp["page"].(float64) != 0 {
		t.Fatalf("empty list must report page 0, got %v", resp["page"])
	}
}

func TestMarkNotificationRead(t *testing.T) {
	h := New(Services{Notifications: stubNotifSvc{
		markRead: func(ctx context.Context, userID, id string) error {
			if userID != "u1" {
				return services.ErrNotificationNotFound
			}
			return nil
		},
	}})
	r := newRouter(h)
	if w := do(r, http.MethodPut, "/notifications/n1/read", "u1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if w := do(r, http.MethodPut, "/notifications/n1/read", "u2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("other user: status=%d", w.Code)
	}
}
