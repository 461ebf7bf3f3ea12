package paymongo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Event types the pipeline reacts to.
const (
	EventPaymentPaid     = "payment.paid"
	EventLinkPaymentPaid = "link.payment.paid"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
)

// ErrInvalidEnvelope is returned when a webhook body is not a PayMongo event.
var ErrInvalidEnvelope = errors.New("invalid paymongo event envelope")

var envelopeValidator = validator.New()

// Event is the normalized view of a webhook delivery.
type Event struct {
	ID        string
	Type      string
	LiveMode  bool
	CreatedAt time.Time

	Resource Resource
}

// Resource is the object the event refers to (payment, link, refund).
type Resource struct {
	ID              string
	Type            string
	Status          string
	PaymentIntentID string
	Currency        string
	Description     string
	SourceType      string

	// Centavo figures; nil when the gateway omitted them.
	Amount    *int64
	Fee       *int64
	NetAmount *int64

	PaidAt *time.Time

	// Payments embedded in link resources.
	Payments []Resource
}

type rawResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Amount          *int64 `json:"amount"`
		Fee             *int64 `json:"fee"`
		NetAmount       *int64 `json:"net_amount"`
		Currency        string `json:"currency"`
		Status          string `json:"status"`
		Description     string `json:"description"`
		PaymentIntentID string `json:"payment_intent_id"`
		PaidAt          *int64 `json:"paid_at"`
		Source          struct {
			Type string `json:"type"`
		} `json:"source"`
		Payments []struct {
			Data *rawResource `json:"data"`
		} `json:"payments"`
	} `json:"attributes"`
}

type rawEnvelope struct {
	Data struct {
		ID         string `json:"id" validate:"required"`
		Type       string `json:"type" validate:"omitempty,eq=event"`
		Attributes struct {
			Type      string       `json:"type" validate:"required"`
			LiveMode  bool         `json:"livemode"`
			CreatedAt int64        `json:"created_at"`
			Data      *rawResource `json:"data" validate:"required"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body. Any structural problem is reported as
// ErrInvalidEnvelope.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := envelopeValidator.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	ev := &Event{
		ID:       strings.TrimSpace(raw.Data.ID),
		Type:     strings.ToLower(strings.TrimSpace(raw.Data.Attributes.Type)),
		LiveMode: raw.Data.Attributes.LiveMode,
		Resource: raw.Data.Attributes.Data.normalize(),
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrInvalidEnvelope)
	}
	if raw.Data.Attributes.CreatedAt > 0 {
		ev.CreatedAt = time.Unix(raw.Data.Attributes.CreatedAt, 0).UTC()
	}
	return ev, nil
}

func (r *rawResource) normalize() Resource {
	a := r.Attributes
	out := Resource{
		ID:              strings.TrimSpace(r.ID),
		Type:            strings.TrimSpace(r.Type),
		Status:          strings.TrimSpace(a.Status),
		PaymentIntentID: strings.TrimSpace(a.PaymentIntentID),
		Currency:        strings.ToUpper(strings.TrimSpace(a.Currency)),
		Description:     strings.TrimSpace(a.Description),
		SourceType:      strings.ToLower(strings.TrimSpace(a.Source.Type)),
		Amount:          a.Amount,
		Fee:             a.Fee,
		NetAmount:       a.NetAmount,
	}
	if a.PaidAt != nil && *a.PaidAt > 0 {
		t := time.Unix(*a.PaidAt, 0).UTC()
		out.PaidAt = &t
	}
	for _, p := range a.Payments {
		if p.Data != nil {
			out.Payments = append(out.Payments, p.Data.normalize())
		}
	}
	return out
}

// Refs returns every gateway identifier that can resolve the local
// transaction, most specific first and without duplicates.
func (e *Event) Refs() []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			refs = append(refs, v)
		}
	}

	add(e.Resource.ID)
	add(e.Resource.PaymentIntentID)
	for _, p := range e.Resource.Payments {
		add(p.ID)
		add(p.PaymentIntentID)
	}
	return refs
}

// Payment returns the resource carrying the payment figures: the first
// embedded payment for link events, the resource itself otherwise.
func (e *Event) Payment() Resource {
	if len(e.Resource.Payments) > 0 {
		return e.Resource.Payments[0]
	}
	return e.Resource
}

// Centavos converts a minor-unit amount into a decimal in major units.
func Centavos(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// NullCentavos converts an optional minor-unit amount.
func NullCentavos(v *int64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(Centavos(*v))
}
