package longpoll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-social-backend/internal/checkpoint"
	"github.com/tbourn/go-social-backend/internal/domain"
)

var t0 = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func cand(id string, at time.Time) domain.Candidate {
	return domain.Candidate{ID: id, CreatedAt: at}
}

// fakeSource serves a mutable candidate list and counts calls.
type fakeSource struct {
	mu    sync.Mutex
	items []domain.Candidate
	err   error
	calls int
}

func (f *fakeSource) set(items ...domain.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

func (f *fakeSource) fetch(ctx context.Context) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Candidate(nil), f.items...), nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingStore wraps a MemoryStore and can fail on demand. setErr applies
// to every key unless failKey narrows it to one.
type recordingStore struct {
	*checkpoint.MemoryStore
	mu      sync.Mutex
	sets    int
	getErr  error
	setErr  error
	failKey string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: checkpoint.NewMemoryStore(0, 0)}
}

func (s *recordingStore) Get(ctx context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return 0, false, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *recordingStore) Set(ctx context.Context, key string, ms int64) error {
	s.mu.Lock()
	err := s.setErr
	if s.failKey != "" && s.failKey != key {
		err = nil
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, key, ms)
}

func (s *recordingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func TestDetector_EmptyStreamIsNotNew(t *testing.T) {
	d := NewDetector(newRecordingStore())
	src := &fakeSource{}
	det, err := d.Check(context.Background(), domain.NotificationStream("u1"), src.fetch)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if det.IsNew || len(det.Items) != 0 || det.Latest != 0 {
		t.Fatalf("empty stream classified as %+v", det)
	}
}

func TestDetector_Classification(t *testing.T) {
	id := domain.MessageStream("u1")
	latest := t0.Add(10 * time.Second)

	tests := []struct {
		name       string
		checkpoint *int64
		want       bool
	}{
		{"bootstrap without checkpoint", nil, true},
		{"checkpoint equals latest", ptr(latest.UnixMilli()), false},
		{"checkpoint older than latest", ptr(t0.UnixMilli()), true},
		// strict inequality: a newest item older than the checkpoint still counts
		{"checkpoint newer than latest", ptr(latest.Add(time.Minute).UnixMilli()), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newRecordingStore()
			if tc.checkpoint != nil {
				_ = store.MemoryStore.Set(context.Background(), id.Key(), *tc.checkpoint)
			}
			src := &fakeSource{items: []domain.Candidate{cand("b", latest), cand("a", t0)}}

			det, err := NewDetector(store).Check(context.Background(), id, src.fetch)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if det.IsNew != tc.want {
				t.Fatalf("IsNew = %v; want %v", det.IsNew, tc.want)
			}
			if det.Latest != latest.UnixMilli() {
				t.Fatalf("Latest = %d; want %d", det.Latest, latest.UnixMilli())
			}
			if det.HasCheckpoint != (tc.checkpoint != nil) {
				t.Fatalf("HasCheckpoint = %v", det.HasCheckpoint)
			}
			if store.writes() != 0 {
				t.Fatalf("detector must not write checkpoints")
			}
		})
	}
}

func TestDetector_Errors(t *testing.T) {
	boom := errors.New("boom")
	id := domain.NotificationStream("u1")

	src := &fakeSource{err: boom}
	if _, err := NewDetector(newRecordingStore()).Check(context.Background(), id, src.fetch); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}

	store := newRecordingStore()
	store.getErr = boom
	ok := &fakeSource{items: []domain.Candidate{cand("a", t0)}}
	if _, err := NewDetector(store).Check(context.Background(), id, ok.fetch); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func ptr(v int64) *int64 { return &v }
