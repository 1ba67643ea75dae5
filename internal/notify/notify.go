// Package notify fans shop events out to the manager chat and the order event stream.
package notify

import (
	"context"
	"errors"

	"github.com/m3rciful/flowerbot/internal/model"
)

const componentNotify = "notify"

// Notifier receives shop events after they are committed.
type Notifier interface {
	OrderPlaced(ctx context.Context, o model.Order, customer model.User) error
	FeedbackReceived(ctx context.Context, fb model.Feedback, customer model.User) error
	OrderStatusChanged(ctx context.Context, o model.Order) error
}

// Multi calls every notifier and joins their errors.
type Multi []Notifier

func (m Multi) OrderPlaced(ctx context.Context, o model.Order, customer model.User) error {
	var errs []error
	for _, n := range m {
		if n != nil {
			errs = append(errs, n.OrderPlaced(ctx, o, customer))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) FeedbackReceived(ctx context.Context, fb model.Feedback, customer model.User) error {
	var errs []error
	for _, n := range m {
		if n != nil {
			errs = append(errs, n.FeedbackReceived(ctx, fb, customer))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) OrderStatusChanged(ctx context.Context, o model.Order) error {
	var errs []error
	for _, n := range m {
		if n != nil {
			errs = append(errs, n.OrderStatusChanged(ctx, o))
		}
	}
	return errors.Join(errs...)
}
