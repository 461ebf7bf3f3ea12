package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/ManuelReschke/DocPay/internal/pkg/database"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
)

var errDriftDetected = errors.New("gateway and local state disagree")

type intentGetter interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*paymongo.PaymentIntent, error)
}

type transactionFinder interface {
	GetTransactionByGatewayRef(ctx context.Context, ref string) (*models.PaymentTransaction, error)
}

// IntentCheck compares a payment intent at the gateway with the local row.
type IntentCheck struct {
	Intent   *paymongo.PaymentIntent
	Expected models.TransactionStatus
	Local    *models.PaymentTransaction
}

// Drift lists every disagreement; empty means in sync.
func (c *IntentCheck) Drift() []string {
	if c.Local == nil {
		return []string{"no local transaction for this intent or its payments"}
	}
	var out []string
	if c.Local.Status != c.Expected {
		out = append(out, fmt.Sprintf("status: gateway implies %s, local is %s", c.Expected, c.Local.Status))
	}
	gatewayAmount := decimal.New(c.Intent.Amount, -2)
	if !gatewayAmount.Equal(c.Local.Amount) {
		out = append(out, fmt.Sprintf("amount: gateway %s, local %s", gatewayAmount.StringFixed(2), c.Local.Amount.StringFixed(2)))
	}
	return out
}

// expectedStatus maps the gateway view onto a local transaction status. The
// latest payment wins over the intent status.
func expectedStatus(intent *paymongo.PaymentIntent) models.TransactionStatus {
	if intent.LastPayment != nil {
		switch intent.LastPayment.Status {
		case "paid":
			return models.TransactionStatusSucceeded
		case "failed":
			return models.TransactionStatusFailed
		case "refunded":
			return models.TransactionStatusRefunded
		}
	}
	if intent.Status == "succeeded" {
		return models.TransactionStatusSucceeded
	}
	return models.TransactionStatusPending
}

func checkIntent(ctx context.Context, gw intentGetter, local transactionFinder, intentID string) (*IntentCheck, error) {
	intent, err := gw.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	check := &IntentCheck{Intent: intent, Expected: expectedStatus(intent)}

	refs := append([]string{intent.ID}, intent.PaymentIDs...)
	for _, ref := range refs {
		t, err := local.GetTransactionByGatewayRef(ctx, ref)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", ref, err)
		}
		check.Local = t
		break
	}
	return check, nil
}

func printIntentCheck(out io.Writer, c *IntentCheck) {
	fmt.Fprintf(out, "Payment intent %s\n", c.Intent.ID)
	fmt.Fprintf(out, "  Gateway status:  %s\n", c.Intent.Status)
	if c.Intent.LastPayment != nil {
		fmt.Fprintf(out, "  Last payment:    %s (%s)\n", c.Intent.LastPayment.ID, c.Intent.LastPayment.Status)
	}
	fmt.Fprintf(out, "  Gateway amount:  %s %s\n", decimal.New(c.Intent.Amount, -2).StringFixed(2), c.Intent.Currency)
	if c.Local != nil {
		fmt.Fprintf(out, "  Local txn:       #%d %s\n", c.Local.ID, c.Local.ExternalTransactionID)
		fmt.Fprintf(out, "  Local status:    %s\n", c.Local.Status)
		fmt.Fprintf(out, "  Local amount:    %s %s\n", c.Local.Amount.StringFixed(2), c.Local.Currency)
	}

	drift := c.Drift()
	if len(drift) == 0 {
		fmt.Fprintln(out, "In sync")
		return
	}
	fmt.Fprintln(out, "Drift:")
	for _, d := range drift {
		fmt.Fprintf(out, "  - %s\n", d)
	}
}

// openService builds the payment service against the configured database.
func openService(cfg *config.Config, batchSize int) (*payment.Service, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	verifier := paymongo.NewVerifier(cfg.PayMongo.WebhookSecret, cfg.PayMongo.SignatureTolerance, cfg.PayMongo.LiveMode)
	return payment.NewServiceFromDB(db, verifier, batchSize), nil
}

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Inspect payments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [intent-id]",
		Short: "Compare a payment intent at PayMongo with the local transaction",
		Long: `Fetches the payment intent from PayMongo and reports any disagreement
with the local transaction. Exits non-zero when drift is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := openService(cfg, cfg.Reconcile.BatchSize)
			if err != nil {
				return err
			}
			gw := paymongo.NewClient(cfg.PayMongo.SecretKey, cfg.PayMongo.APIBaseURL)

			check, err := checkIntent(cmd.Context(), gw, svc, args[0])
			if err != nil {
				return err
			}
			printIntentCheck(cmd.OutOrStdout(), check)
			if len(check.Drift()) > 0 {
				return errDriftDetected
			}
			return nil
		},
	})

	return cmd
}
