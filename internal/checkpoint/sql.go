package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// SQLStore keeps checkpoints in the poll_checkpoints table so they survive
// restarts. Rows older than the TTL read as absent.
type SQLStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLStore builds a SQLStore on db. ttl <= 0 disables expiry.
func NewSQLStore(db *gorm.DB, ttl time.Duration) *SQLStore {
	return &SQLStore{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (int64, bool, error) {
	var row domain.PollCheckpoint
	q := s.db.WithContext(ctx).Where("key = ?", key)
	if s.ttl > 0 {
		q = q.Where("updated_at > ?", s.now().Add(-s.ttl))
	}
	err := q.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.Millis, true, nil
}

// Set implements Store as an upsert; the last writer wins.
func (s *SQLStore) Set(ctx context.Context, key string, ms int64) error {
	row := domain.PollCheckpoint{Key: key, Millis: ms, UpdatedAt: s.now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"millis", "updated_at"}),
	}).Create(&row).Error
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.PollCheckpoint{}).Error
}

// Prune deletes rows not written within the TTL and returns how many were removed.
func (s *SQLStore) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("updated_at <= ?", s.now().Add(-s.ttl)).
		Delete(&domain.PollCheckpoint{})
	return res.RowsAffected, res.Error
}

// RunPruner calls Prune every interval until ctx is done. Failures are
// logged and retried on the next tick.
func (s *SQLStore) RunPruner(ctx context.Context, clk clock.Clock, every time.Duration) {
	if s.ttl <= 0 || every <= 0 {
		return
	}
	lg := zerolog.Ctx(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-clk.After(every):
		}
		n, err := s.Prune(ctx)
		if err != nil {
			if ctx.Err() == nil {
				lg.Warn().Err(err).Msg("checkpoint prune failed")
			}
			continue
		}
		if n > 0 {
			lg.Debug().Int64("removed", n).Msg("checkpoints pruned")
		}
	}
}
