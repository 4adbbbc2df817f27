package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

// Stripe event types the reconciliation reacts to.
const (
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventCheckoutCompleted    = "checkout.session.completed"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventCustomerCreated      = "customer.created"
	EventPaymentSucceeded     = "payment_intent.succeeded"
	EventProductCreated       = "product.created"
	EventProductUpdated       = "product.updated"
	EventPriceCreated         = "price.created"
	EventPriceUpdated         = "price.updated"
)

const (
	MetadataUserIDKey         = "userId"
	MetadataSubscriptionIDKey = "subscription_id"
	CheckoutModeSubscription  = "subscription"
)

// Event is a verified Stripe event decoded into one of the variants below.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// EventMeta identifies the delivery an Event was decoded from.
type EventMeta struct {
	ID   string
	Type string
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) isEvent()          {}

type SubscriptionChanged struct {
	EventMeta
	Subscription SubscriptionPayload
}

type SubscriptionDeleted struct {
	EventMeta
	Subscription SubscriptionPayload
}

type CheckoutCompleted struct {
	EventMeta
	Session CheckoutSessionPayload
}

type InvoicePaid struct {
	EventMeta
	Invoice InvoicePayload
}

type InvoicePaymentFailed struct {
	EventMeta
	Invoice InvoicePayload
}

type CustomerCreated struct {
	EventMeta
	Customer CustomerPayload
}

type PaymentSucceeded struct {
	EventMeta
	PaymentIntent PaymentIntentPayload
}

type ProductChanged struct {
	EventMeta
	Product ProductPayload
}

type PriceChanged struct {
	EventMeta
	Price PricePayload
}

// Unhandled is any event type without a handler.
type Unhandled struct {
	EventMeta
}

// ParseEvent decodes the data object of a verified event into its variant.
func ParseEvent(evt stripe.Event) (Event, error) {
	meta := EventMeta{ID: evt.ID, Type: string(evt.Type)}

	var raw json.RawMessage
	if evt.Data != nil {
		raw = evt.Data.Raw
	}
	decode := func(v interface{}) error {
		if len(raw) == 0 {
			return errors.New("event has no data object")
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("decode %s: %w", meta.Type, err)
		}
		return nil
	}

	switch meta.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		ev := SubscriptionChanged{EventMeta: meta}
		if err := decode(&ev.Subscription); err != nil {
			return nil, err
		}
		return ev, nil
	case EventSubscriptionDeleted:
		ev := SubscriptionDeleted{EventMeta: meta}
		if err := decode(&ev.Subscription); err != nil {
			return nil, err
		}
		return ev, nil
	case EventCheckoutCompleted:
		ev := CheckoutCompleted{EventMeta: meta}
		if err := decode(&ev.Session); err != nil {
			return nil, err
		}
		return ev, nil
	case EventInvoicePaid:
		ev := InvoicePaid{EventMeta: meta}
		if err := decode(&ev.Invoice); err != nil {
			return nil, err
		}
		return ev, nil
	case EventInvoicePaymentFailed:
		ev := InvoicePaymentFailed{EventMeta: meta}
		if err := decode(&ev.Invoice); err != nil {
			return nil, err
		}
		return ev, nil
	case EventCustomerCreated:
		ev := CustomerCreated{EventMeta: meta}
		if err := decode(&ev.Customer); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPaymentSucceeded:
		ev := PaymentSucceeded{EventMeta: meta}
		if err := decode(&ev.PaymentIntent); err != nil {
			return nil, err
		}
		return ev, nil
	case EventProductCreated, EventProductUpdated:
		ev := ProductChanged{EventMeta: meta}
		if err := decode(&ev.Product); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPriceCreated, EventPriceUpdated:
		ev := PriceChanged{EventMeta: meta}
		if err := decode(&ev.Price); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return Unhandled{EventMeta: meta}, nil
	}
}
