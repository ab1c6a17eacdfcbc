package longpoll

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-social-backend/internal/checkpoint"
	"github.com/tbourn/go-social-backend/internal/domain"
)

// Delivery is what one stream contributes to a response.
type Delivery struct {
	Identity domain.StreamIdentity
	IDs      []string
}

// Formatter turns positive Detections into Deliveries and advances the
// streams' checkpoints.
type Formatter struct {
	store checkpoint.Store
}

// NewFormatter returns a Formatter writing checkpoints to store.
func NewFormatter(store checkpoint.Store) *Formatter {
	return &Formatter{store: store}
}

// Format keeps the candidates created at or after the prior checkpoint (all
// of them when there is none). A detection that is not new yields an empty,
// non-nil ID list. Format never writes.
func (f *Formatter) Format(det Detection) Delivery {
	out := Delivery{Identity: det.Identity, IDs: []string{}}
	if !det.advances() {
		return out
	}
	for _, it := range det.Items {
		if det.HasCheckpoint && it.Millis() < det.Checkpoint {
			continue
		}
		out.IDs = append(out.IDs, it.ID)
	}
	return out
}

// Commit writes the newest candidate's timestamp as the checkpoint of every
// new detection in dets. If a write fails, checkpoints already advanced by
// this call are put back to the values read during the check, so a failed
// delivery leaves every stream as it was.
func (f *Formatter) Commit(ctx context.Context, dets []Detection) error {
	written := make([]Detection, 0, len(dets))
	for _, det := range dets {
		if !det.advances() {
			continue
		}
		if err := f.store.Set(ctx, det.Identity.Key(), det.Latest); err != nil {
			err = fmt.Errorf("write checkpoint %s: %w", det.Identity.Key(), err)
			// Restoring must run even when ctx is what failed the write.
			return errors.Join(err, f.restore(context.WithoutCancel(ctx), written))
		}
		written = append(written, det)
	}
	return nil
}

func (f *Formatter) restore(ctx context.Context, dets []Detection) error {
	var errs []error
	for _, det := range dets {
		key := det.Identity.Key()
		var err error
		if det.HasCheckpoint {
			err = f.store.Set(ctx, key, det.Checkpoint)
		} else {
			err = f.store.Delete(ctx, key)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore checkpoint %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Deliver commits det's checkpoint and only then returns its IDs.
func (f *Formatter) Deliver(ctx context.Context, det Detection) (Delivery, error) {
	if err := f.Commit(ctx, []Detection{det}); err != nil {
		return Delivery{}, err
	}
	return f.Format(det), nil
}
