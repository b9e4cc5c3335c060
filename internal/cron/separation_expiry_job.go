package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/internal/picking"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

type separationExpirer interface {
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.SeparationOrder, error)
	ExpireOrder(ctx context.Context, ref picking.OrderRef) (*models.SeparationOrder, error)
}

// SeparationExpiryJobParams configure the separation order expiry sweep.
type SeparationExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    separationExpirer
	BatchSize int
}

// NewSeparationExpiryJob expires open separation orders past expires_at.
func NewSeparationExpiryJob(params SeparationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("picking service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &separationExpiryJob{logg: params.Logger, orders: params.Orders, batch: batch, now: time.Now}, nil
}

type separationExpiryJob struct {
	logg   *logger.Logger
	orders separationExpirer
	batch  int
	now    func() time.Time
}

func (j *separationExpiryJob) Name() string { return "separation-expiry" }

func (j *separationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	due, err := j.orders.ListExpired(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query expired separation orders: %w", err)
	}
	var errs error
	expired := 0
	for _, order := range due {
		_, err := j.orders.ExpireOrder(ctx, picking.OrderRef{
			TenantID: order.TenantID,
			OrderID:  order.ID,
			Actor:    systemActor,
		})
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
			errs = multierr.Append(errs, fmt.Errorf("expire separation order %s: %w", order.Code, err))
			continue
		}
		if err == nil {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(due), "expired": expired})
	j.logg.Info(logCtx, "separation expiry sweep complete")
	return errs
}
