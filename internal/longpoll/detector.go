// Package longpoll implements bounded-duration long polling over incremental
// streams. A Controller drives one session per request: it repeatedly asks a
// Detector whether a stream holds anything newer than the client's checkpoint,
// and when it does, a Formatter filters the candidates, advances the
// checkpoint and hands the IDs back to the caller.
//
// Delivery is at-least-once. Two sessions for the same stream identity that
// observe the same new item concurrently will both deliver it.
package longpoll

import (
	"context"
	"fmt"

	"github.com/tbourn/go-social-backend/internal/checkpoint"
	"github.com/tbourn/go-social-backend/internal/domain"
)

// Source returns the current candidates of a stream, newest first, with every
// eligibility filter already applied.
type Source func(ctx context.Context) ([]domain.Candidate, error)

// Detection is the outcome of one check of one stream.
type Detection struct {
	Identity domain.StreamIdentity
	IsNew    bool
	Items    []domain.Candidate
	// Latest is Items[0] in ms; zero when Items is empty.
	Latest int64
	// Checkpoint is the value read during the check; HasCheckpoint is false
	// for a stream that was never delivered (or whose checkpoint expired).
	Checkpoint    int64
	HasCheckpoint bool
}

// Detector decides whether a stream has new data. It never writes.
type Detector struct {
	store checkpoint.Store
}

// NewDetector returns a Detector reading checkpoints from store.
func NewDetector(store checkpoint.Store) *Detector {
	return &Detector{store: store}
}

// Check fetches the candidates of id and compares the newest one against the
// stored checkpoint.
//
// Any difference counts as new, including a newest item older than the
// checkpoint (e.g. after the previous newest item was deleted). The
// checkpoint is re-read on every call so concurrent deliveries are observed.
func (d *Detector) Check(ctx context.Context, id domain.StreamIdentity, src Source) (Detection, error) {
	det := Detection{Identity: id}

	items, err := src(ctx)
	if err != nil {
		return det, fmt.Errorf("fetch %s: %w", id.Key(), err)
	}
	if len(items) == 0 {
		return det, nil
	}
	det.Items = items
	det.Latest = items[0].Millis()

	ms, ok, err := d.store.Get(ctx, id.Key())
	if err != nil {
		return det, fmt.Errorf("read checkpoint %s: %w", id.Key(), err)
	}
	det.Checkpoint, det.HasCheckpoint = ms, ok
	det.IsNew = !ok || det.Latest != ms
	return det, nil
}

// advances reports whether delivering d moves its checkpoint.
func (d Detection) advances() bool { return d.IsNew && len(d.Items) > 0 }
