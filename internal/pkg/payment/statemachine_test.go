package payment

import (
	"testing"

	"github.com/ManuelReschke/DocPay/app/models"
)

func TestCanTransition(t *testing.T) {
	statuses := []models.TransactionStatus{
		models.TransactionStatusPending,
		models.TransactionStatusSucceeded,
		models.TransactionStatusFailed,
		models.TransactionStatusRefunded,
	}
	allowed := map[[2]models.TransactionStatus]bool{
		{models.TransactionStatusPending, models.TransactionStatusSucceeded}:  true,
		{models.TransactionStatusPending, models.TransactionStatusFailed}:     true,
		{models.TransactionStatusSucceeded, models.TransactionStatusRefunded}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]models.TransactionStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTargetStatusForEvent(t *testing.T) {
	tests := []struct {
		in   string
		want models.TransactionStatus
		ok   bool
	}{
		{in: "payment.paid", want: models.TransactionStatusSucceeded, ok: true},
		{in: "link.payment.paid", want: models.TransactionStatusSucceeded, ok: true},
		{in: " Payment.Failed ", want: models.TransactionStatusFailed, ok: true},
		{in: "payment.refunded", want: models.TransactionStatusRefunded, ok: true},
		{in: "source.chargeable", ok: false},
		{in: "", ok: false},
	}

	for _, tt := range tests {
		got, ok := TargetStatusForEvent(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("TargetStatusForEvent(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
