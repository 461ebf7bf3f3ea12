package jobqueue

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/gofiber/fiber/v2/log"
)

// ReceiptLoader reads a committed receipt by its transaction.
type ReceiptLoader interface {
	GetReceipt(ctx context.Context, transactionID uint) (*models.Receipt, error)
}

// ReceiptStore writes a receipt snapshot somewhere durable and returns its key.
type ReceiptStore interface {
	PutReceipt(ctx context.Context, receipt *models.Receipt) (string, error)
}

// ReceiptArchiveHook enqueues an archive job for every committed receipt.
// Enqueue failures are logged; the receipt itself is already durable.
func ReceiptArchiveHook(q *Queue) payment.ReceiptHook {
	return payment.ReceiptHookFunc(func(ctx context.Context, receipt *models.Receipt) {
		p := ReceiptArchiveJobPayload{
			TransactionID: receipt.TransactionID,
			ReceiptNumber: receipt.ReceiptNumber,
		}
		if _, err := q.EnqueueJob(ctx, JobTypeReceiptArchive, p.ToMap()); err != nil {
			log.Warnf("[JobQueue] Could not enqueue archive for receipt %s: %v", receipt.ReceiptNumber, err)
		}
	})
}

// NewReceiptArchiveProcessor copies the receipt named by the job to store.
func NewReceiptArchiveProcessor(loader ReceiptLoader, store ReceiptStore) Processor {
	return func(ctx context.Context, job *Job) error {
		p, err := ReceiptArchiveJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		if p.TransactionID == 0 {
			return fmt.Errorf("invalid payload: missing transaction_id")
		}

		receipt, err := loader.GetReceipt(ctx, p.TransactionID)
		if err != nil {
			return fmt.Errorf("load receipt for transaction %d: %w", p.TransactionID, err)
		}
		key, err := store.PutReceipt(ctx, receipt)
		if err != nil {
			return fmt.Errorf("archive receipt %s: %w", receipt.ReceiptNumber, err)
		}
		log.Infof("[JobQueue] Archived receipt %s to %s", receipt.ReceiptNumber, key)
		return nil
	}
}
