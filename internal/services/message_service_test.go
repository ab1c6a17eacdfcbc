package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// ---------- test helpers ----------

type msgFixture struct {
	db    *gorm.DB
	svc   *MessageService
	a, b  *domain.User
	conv  *domain.Conversation
	notes *NotificationService
}

func newMsgFixture(t *testing.T) msgFixture {
	t.Helper()
	db := newSvcDB(t)
	a, b := mustUser(t, db, "a"), mustUser(t, db, "b")
	conv, err := repo.CreateConversation(context.Background(), db, false, a.ID, b.ID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	users := NewUserService(db)
	convs := NewConversationService(db, testConvRepo{}, users)
	notes := NewNotificationService(db)
	return msgFixture{
		db:    db,
		svc:   NewMessageService(db, convs, users, notes),
		a:     a,
		b:     b,
		conv:  conv,
		notes: notes,
	}
}

// seedMsgs inserts n messages one second apart, oldest first.
func seedMsgs(t *testing.T, db *gorm.DB, convID, senderID string, n int, t0 time.Time) []domain.Message {
	t.Helper()
	out := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		m := domain.Message{
			ID:             "m" + string(rune('a'+i)),
			ConversationID: convID,
			SenderID:       senderID,
			Text:           "hello",
			CreatedAt:      at,
			UpdatedAt:      at,
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
		out = append(out, m)
	}
	return out
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Create(ctx context.Context, in NewNotification) (*domain.Notification, error) {
	f.calls++
	return nil, errors.New("notify down")
}

// ---------- Send ----------

func TestMessageService_Send_Validation(t *testing.T) {
	f := newMsgFixture(t)
	f.svc.MaxTextRunes = 3

	if _, err := f.svc.Send(context.Background(), f.a.ID, f.conv.ID, "  \n "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := f.svc.Send(context.Background(), f.a.ID, f.conv.ID, "abcd"); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	if _, err := f.svc.Send(context.Background(), f.a.ID, "nope", "hi"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	outsider := mustUser(t, f.db, "c")
	if _, err := f.svc.Send(context.Background(), outsider.ID, f.conv.ID, "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestMessageService_Send_PersistsAndNotifies(t *testing.T) {
	f := newMsgFixture(t)

	m, err := f.svc.Send(context.Background(), f.a.ID, f.conv.ID, "  hi there ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Text != "hi there" || m.SenderID != f.a.ID {
		t.Fatalf("unexpected message %+v", m)
	}

	var conv domain.Conversation
	if err := f.db.First(&conv, "id = ?", f.conv.ID).Error; err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	if conv.LatestMessageID == nil || *conv.LatestMessageID != m.ID {
		t.Fatalf("latest message = %v, want %s", conv.LatestMessageID, m.ID)
	}

	cands, err := f.notes.LongPollCandidates(context.Background(), f.b.ID, domain.StreamMessage)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Category != domain.CategoryMessage {
		t.Fatalf("recipient message notifications = %+v", cands)
	}
	mine, _ := f.notes.LongPollCandidates(context.Background(), f.a.ID, domain.StreamMessage)
	if len(mine) != 0 {
		t.Fatalf("sender must not be notified, got %+v", mine)
	}
}

func TestMessageService_Send_NotifierFailureIsNotFatal(t *testing.T) {
	f := newMsgFixture(t)
	n := &failingNotifier{}
	f.svc.Notifier = n

	if _, err := f.svc.Send(context.Background(), f.a.ID, f.conv.ID, "hi"); err != nil {
		t.Fatalf("Send should succeed when notifications fail: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", n.calls)
	}
}

// ---------- ListPage ----------

func TestMessageService_ListPage_OldestFirstWithinPage(t *testing.T) {
	f := newMsgFixture(t)
	t0 := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	msgs := seedMsgs(t, f.db, f.conv.ID, f.b.ID, 5, t0) // ma..me

	p1, err := f.svc.ListPage(context.Background(), f.a.ID, f.conv.ID, 1, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if p1.Total != 5 || p1.Page != 1 || p1.TotalPages != 3 || p1.Batch != 2 {
		t.Fatalf("meta = %+v", p1)
	}
	if p1.Items[0].ID != msgs[3].ID || p1.Items[1].ID != msgs[4].ID {
		t.Fatalf("page 1 = %s,%s", p1.Items[0].ID, p1.Items[1].ID)
	}

	p3, err := f.svc.ListPage(context.Background(), f.a.ID, f.conv.ID, 3, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if p3.Batch != 1 || p3.Items[0].ID != msgs[0].ID {
		t.Fatalf("page 3 = %+v", p3.Items)
	}

	u, _ := NewUserService(f.db).Get(context.Background(), f.a.ID)
	if u.LastSeenAt == nil {
		t.Fatalf("expected last seen to be touched")
	}
}

func TestMessageService_ListPage_Empty(t *testing.T) {
	f := newMsgFixture(t)
	p, err := f.svc.ListPage(context.Background(), f.a.ID, f.conv.ID, 2, 10)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if p.Total != 0 || p.Page != 0 || p.TotalPages != 0 || p.Batch != 0 || p.Items == nil {
		t.Fatalf("empty page = %+v", p)
	}
}

func TestMessageService_ListPage_RequiresParticipant(t *testing.T) {
	f := newMsgFixture(t)
	outsider := mustUser(t, f.db, "c")
	if _, err := f.svc.ListPage(context.Background(), outsider.ID, f.conv.ID, 1, 10); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

// ---------- MarkRead ----------

func TestMessageService_MarkRead(t *testing.T) {
	f := newMsgFixture(t)
	msgs := seedMsgs(t, f.db, f.conv.ID, f.b.ID, 1, time.Now().UTC())
	id := msgs[0].ID

	// sender: no-op
	if err := f.svc.MarkRead(context.Background(), f.b.ID, id); err != nil {
		t.Fatalf("sender MarkRead: %v", err)
	}
	got, _ := repo.GetMessage(context.Background(), f.db, id)
	if got.IsRead {
		t.Fatalf("sender must not mark own message read")
	}

	if err := f.svc.MarkRead(context.Background(), f.a.ID, id); err != nil {
		t.Fatalf("recipient MarkRead: %v", err)
	}
	got, _ = repo.GetMessage(context.Background(), f.db, id)
	if !got.IsRead {
		t.Fatalf("expected message read")
	}

	outsider := mustUser(t, f.db, "c")
	if err := f.svc.MarkRead(context.Background(), outsider.ID, id); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("outsider: expected ErrMessageNotFound, got %v", err)
	}
	if err := f.svc.MarkRead(context.Background(), f.a.ID, "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing: expected ErrMessageNotFound, got %v", err)
	}
}

// ---------- Candidates / Count ----------

func TestMessageService_CandidatesNewestFirst(t *testing.T) {
	f := newMsgFixture(t)
	t0 := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	msgs := seedMsgs(t, f.db, f.conv.ID, f.b.ID, 3, t0)

	cands, err := f.svc.Candidates(context.Background(), f.conv.ID, 1, 2)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != 2 || cands[0].ID != msgs[2].ID || cands[1].ID != msgs[1].ID {
		t.Fatalf("candidates = %+v", cands)
	}
	if cands[0].Millis() != msgs[2].CreatedAt.UnixMilli() {
		t.Fatalf("millis mismatch")
	}

	n, err := f.svc.Count(context.Background(), f.conv.ID)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	u, _ := NewUserService(f.db).Get(context.Background(), f.a.ID)
	if u.LastSeenAt != nil {
		t.Fatalf("Candidates must not touch last seen")
	}
}

func TestMessageService_SendTooLongCountsRunes(t *testing.T) {
	f := newMsgFixture(t)
	f.svc.MaxTextRunes = 4
	if _, err := f.svc.Send(context.Background(), f.a.ID, f.conv.ID, strings.Repeat("é", 4)); err != nil {
		t.Fatalf("4 runes should fit: %v", err)
	}
}
