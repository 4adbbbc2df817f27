package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
)

// SubscriptionFromPayload maps a Stripe subscription onto the stored record
// for userID. Only the first line item is considered; a missing quantity
// is stored as 1.
func SubscriptionFromPayload(p SubscriptionPayload, userID string) *models.Subscription {
	sub := &models.Subscription{
		UserID:               userID,
		StripeSubscriptionID: strings.TrimSpace(p.ID),
		StripeCustomerID:     p.Customer.String(),
		Status:               strings.ToLower(strings.TrimSpace(p.Status)),
		Quantity:             1,
		CancelAtPeriodEnd:    p.CancelAtPeriodEnd,
		CancelAt:             epochToTime(p.CancelAt),
		CanceledAt:           epochToTime(p.CanceledAt),
		CurrentPeriodStart:   epochToTime(p.CurrentPeriodStart),
		CurrentPeriodEnd:     epochToTime(p.CurrentPeriodEnd),
		Created:              epochToTime(p.Created),
		EndedAt:              epochToTime(p.EndedAt),
		TrialStart:           epochToTime(p.TrialStart),
		TrialEnd:             epochToTime(p.TrialEnd),
	}

	if item, ok := p.FirstItem(); ok {
		sub.PriceID = item.Price.String()
		if item.Quantity != nil && *item.Quantity > 0 {
			sub.Quantity = *item.Quantity
		}
		if sub.CurrentPeriodStart == nil {
			sub.CurrentPeriodStart = epochToTime(item.CurrentPeriodStart)
		}
		if sub.CurrentPeriodEnd == nil {
			sub.CurrentPeriodEnd = epochToTime(item.CurrentPeriodEnd)
		}
	}
	return sub
}

func epochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
