package services

import (
	"context"

	"budgettracker/internal/amqp"
)

// EventPublisher fans out change events. *amqp.Client implements it.
type EventPublisher interface {
	PublishTransactionChanged(ctx context.Context, ev amqp.TransactionChanged) error
	PublishRatesUpdated(ctx context.Context, ev amqp.RatesUpdated) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransactionChanged(context.Context, amqp.TransactionChanged) error {
	return nil
}

func (NopPublisher) PublishRatesUpdated(context.Context, amqp.RatesUpdated) error {
	return nil
}
