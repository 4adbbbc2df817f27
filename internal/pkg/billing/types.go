package billing

import (
	"bytes"
	"encoding/json"
)

// ExpandableID holds the id of a Stripe field that arrives either as a bare
// id string or as an expanded object.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

// SubscriptionPayload is the subset of a Stripe subscription object the
// reconciliation needs. Timestamps are epoch seconds; zero means absent.
type SubscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           ExpandableID      `json:"customer"`
	Status             string            `json:"status"`
	Metadata           map[string]string `json:"metadata"`
	Items              SubscriptionItems `json:"items"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CancelAt           int64             `json:"cancel_at"`
	CanceledAt         int64             `json:"canceled_at"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Created            int64             `json:"created"`
	EndedAt            int64             `json:"ended_at"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
}

type SubscriptionItems struct {
	Data []SubscriptionItemPayload `json:"data"`
}

// SubscriptionItemPayload is one line item. Newer API versions carry the
// billing period on the item instead of the subscription.
type SubscriptionItemPayload struct {
	ID                 string       `json:"id"`
	Price              ExpandableID `json:"price"`
	Quantity           *int64       `json:"quantity"`
	CurrentPeriodStart int64        `json:"current_period_start"`
	CurrentPeriodEnd   int64        `json:"current_period_end"`
}

// FirstItem returns the first line item, if any.
func (p SubscriptionPayload) FirstItem() (SubscriptionItemPayload, bool) {
	if len(p.Items.Data) == 0 {
		return SubscriptionItemPayload{}, false
	}
	return p.Items.Data[0], true
}

// InvoicePayload is the subset of a Stripe invoice used by the invoice handlers.
type InvoicePayload struct {
	ID           string         `json:"id"`
	Customer     ExpandableID   `json:"customer"`
	Subscription ExpandableID   `json:"subscription"`
	Parent       *InvoiceParent `json:"parent"`
	Lines        InvoiceLines   `json:"lines"`
}

type InvoiceParent struct {
	SubscriptionDetails *struct {
		Subscription ExpandableID `json:"subscription"`
	} `json:"subscription_details"`
}

type InvoiceLines struct {
	Data []InvoiceLinePayload `json:"data"`
}

type InvoiceLinePayload struct {
	Period struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"period"`
}

// SubscriptionID resolves the invoice's subscription from either the legacy
// top-level field or the parent details block.
func (p InvoicePayload) SubscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription.String()
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription.String()
	}
	return ""
}

// FirstLinePeriodEnd returns the period end of the first invoice line or 0.
func (p InvoicePayload) FirstLinePeriodEnd() int64 {
	if len(p.Lines.Data) == 0 {
		return 0
	}
	return p.Lines.Data[0].Period.End
}

type CheckoutSessionPayload struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     ExpandableID      `json:"customer"`
	Subscription ExpandableID      `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type CustomerPayload struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type PaymentIntentPayload struct {
	ID       string            `json:"id"`
	Customer ExpandableID      `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// metadataUserID reads the application user id from Stripe metadata.
// userId is written by our checkout and customer creation; user_id is
// accepted for sessions created by older clients.
func metadataUserID(metadata map[string]string) string {
	if v := metadata[MetadataUserIDKey]; v != "" {
		return v
	}
	return metadata["user_id"]
}
