package storage

import (
	"context"
	"errors"

	"swapPay/internal/model"
)

// Storage defines a sink for completed payments.
type Storage interface {
	PutResult(ctx context.Context, result model.SwapResult) error
}

// Fanout writes each result to every sink and joins their errors.
type Fanout []Storage

func (f Fanout) PutResult(ctx context.Context, result model.SwapResult) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.PutResult(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
