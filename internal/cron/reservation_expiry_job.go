package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/internal/reservations"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	defaultExpiryBatch = 200
	systemActor        = "system"
)

type reservationExpirer interface {
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
	Expire(ctx context.Context, in reservations.CloseInput) (*models.Reservation, error)
}

// ReservationExpiryJobParams configure the reservation expiry sweep.
type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations reservationExpirer
	BatchSize    int
}

// NewReservationExpiryJob expires ACTIVE reservations whose expires_at has
// passed, releasing their holds.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation manager required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &reservationExpiryJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		batch:        batch,
		now:          time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg         *logger.Logger
	reservations reservationExpirer
	batch        int
	now          func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	due, err := j.reservations.ListExpired(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query expired reservations: %w", err)
	}
	var errs error
	expired, skipped := 0, 0
	for _, res := range due {
		_, err := j.reservations.Expire(ctx, reservations.CloseInput{
			TenantID:      res.TenantID,
			ReservationID: res.ID,
			Reason:        "expired",
			Actor:         systemActor,
		})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidState):
			// closed or extended since the query
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", res.ID, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"due":     len(due),
		"expired": expired,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return errs
}
