package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// ReceiptIssuer creates the immutable receipt for a succeeded transaction.
type ReceiptIssuer struct {
	repo Repository
	now  func() time.Time
}

// NewReceiptIssuer creates an issuer over repo.
func NewReceiptIssuer(repo Repository) *ReceiptIssuer {
	return &ReceiptIssuer{repo: repo, now: time.Now}
}

// IssueForTransaction returns the receipt for transactionID, creating it if
// none exists. created is false when a receipt was already stored, including
// when a concurrent issuer won the insert.
func (i *ReceiptIssuer) IssueForTransaction(ctx context.Context, transactionID uint) (*models.Receipt, bool, error) {
	t, err := i.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		if isNotFound(err) {
			return nil, false, ErrTransactionNotFound
		}
		return nil, false, err
	}
	if t.Status != models.TransactionStatusSucceeded {
		return nil, false, fmt.Errorf("%w: transaction %d is %s", ErrTransactionNotSucceeded, t.ID, t.Status)
	}

	existing, err := i.repo.FindReceiptByTransactionID(ctx, transactionID)
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}

	src, err := i.repo.LoadReceiptSource(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ErrReceiptSourceIncomplete) {
			return nil, false, fmt.Errorf("%w: transaction %d", ErrReceiptSourceIncomplete, transactionID)
		}
		return nil, false, err
	}

	receipt := buildReceipt(src, i.now())
	created, stored, err := i.repo.CreateReceiptIfNotExists(ctx, receipt)
	if err != nil {
		return nil, false, fmt.Errorf("insert receipt: %w", err)
	}
	if created {
		log.Infof("[Payment] Issued receipt %s for transaction %d", stored.ReceiptNumber, transactionID)
	}
	return stored, created, nil
}

func buildReceipt(src *ReceiptSource, issuedAt time.Time) *models.Receipt {
	method := FallbackPaymentMethod
	if src.PaymentMethod != nil && strings.TrimSpace(*src.PaymentMethod) != "" {
		method = strings.TrimSpace(*src.PaymentMethod)
	}
	currency := src.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	return &models.Receipt{
		ReceiptNumber:         models.ReceiptNumberFor(src.TransactionID),
		TransactionID:         src.TransactionID,
		RequestID:             src.RequestID,
		ClientID:              src.ClientID,
		ClientName:            models.JoinName(src.FirstName, src.MiddleName, src.LastName, src.Suffix),
		ClientEmail:           src.ClientEmail,
		ClientPhone:           src.ClientPhone,
		RequestNumber:         src.RequestNumber,
		DocumentType:          src.DocumentType,
		PaymentMethod:         method,
		Amount:                src.Amount,
		ProcessingFee:         src.ProcessingFee,
		NetAmount:             models.ComputeNetAmount(src.Amount, src.ProcessingFee, src.NetAmount),
		Currency:              currency,
		ExternalTransactionID: src.ExternalTransactionID,
		PaymentIntentID:       src.PaymentIntentID,
		PaymentStatus:         models.RequestPaymentPaid,
		ReceiptDate:           issuedAt,
		PaymentDate:           src.CompletedAt,
		Description:           src.Description,
	}
}
