package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment pipeline. A
// Repository obtained inside Transaction is bound to that transaction;
// calling Transaction on it again opens a savepoint.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID, outcome string) error
	ListWebhookEvents(ctx context.Context, limit int) ([]models.PaymentWebhookEvent, error)

	FindTransactionByGatewayRef(ctx context.Context, refs ...string) (*models.PaymentTransaction, error)
	FindTransactionByID(ctx context.Context, id uint) (*models.PaymentTransaction, error)
	CompareAndSetTransactionStatus(ctx context.Context, id uint, from, to models.TransactionStatus, updates map[string]interface{}) (bool, error)
	AppendStatusHistory(ctx context.Context, entry *models.PaymentStatusHistory) error
	FindPaymentMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error)

	FindRequestByID(ctx context.Context, id uint) (*models.DocumentRequest, error)
	DerivePaymentStatus(ctx context.Context, requestID uint) (string, error)
	UpdateRequestProjection(ctx context.Context, requestID uint, paymentStatus string, statusID *uint) error
	FindRequestStatusByName(ctx context.Context, name string) (*models.RequestStatus, error)
	FindProjectionDrift(ctx context.Context, limit int) ([]ProjectionDrift, error)

	LoadReceiptSource(ctx context.Context, transactionID uint) (*ReceiptSource, error)
	CreateReceiptIfNotExists(ctx context.Context, receipt *models.Receipt) (bool, *models.Receipt, error)
	FindReceiptByTransactionID(ctx context.Context, transactionID uint) (*models.Receipt, error)
	FindOrphanTransactions(ctx context.Context, limit int) ([]models.PaymentTransaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.conn(ctx).Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookEventProcessed(ctx context.Context, eventID, outcome string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed":    true,
		"outcome":      outcome,
		"processed_at": &now,
	}
	return r.conn(ctx).Model(&models.PaymentWebhookEvent{}).Where("event_id = ?", eventID).Updates(updates).Error
}

func (r *gormRepository) ListWebhookEvents(ctx context.Context, limit int) ([]models.PaymentWebhookEvent, error) {
	var events []models.PaymentWebhookEvent
	q := r.conn(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

func (r *gormRepository) FindTransactionByGatewayRef(ctx context.Context, refs ...string) (*models.PaymentTransaction, error) {
	return models.FindTransactionByGatewayRef(r.conn(ctx), refs...)
}

func (r *gormRepository) FindTransactionByID(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.conn(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) CompareAndSetTransactionStatus(ctx context.Context, id uint, from, to models.TransactionStatus, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": string(to)}
	for k, v := range updates {
		values[k] = v
	}
	tx := r.conn(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *gormRepository) AppendStatusHistory(ctx context.Context, entry *models.PaymentStatusHistory) error {
	return r.conn(ctx).Create(entry).Error
}

func (r *gormRepository) FindPaymentMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error) {
	return models.FindPaymentMethodByCode(r.conn(ctx), code)
}

func (r *gormRepository) FindRequestByID(ctx context.Context, id uint) (*models.DocumentRequest, error) {
	var req models.DocumentRequest
	if err := r.conn(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormRepository) DerivePaymentStatus(ctx context.Context, requestID uint) (string, error) {
	return models.DerivePaymentStatus(r.conn(ctx), requestID)
}

func (r *gormRepository) UpdateRequestProjection(ctx context.Context, requestID uint, paymentStatus string, statusID *uint) error {
	updates := map[string]interface{}{"payment_status": paymentStatus}
	if statusID != nil {
		updates["status_id"] = *statusID
	}
	return r.conn(ctx).Model(&models.DocumentRequest{}).Where("id = ?", requestID).Updates(updates).Error
}

func (r *gormRepository) FindRequestStatusByName(ctx context.Context, name string) (*models.RequestStatus, error) {
	return models.FindRequestStatusByName(r.conn(ctx), name)
}

const succeededTransactionExists = "EXISTS (SELECT 1 FROM payment_transactions pt WHERE pt.request_id = document_requests.id AND pt.status = ?)"

func (r *gormRepository) FindProjectionDrift(ctx context.Context, limit int) ([]ProjectionDrift, error) {
	var rows []models.DocumentRequest
	q := r.conn(ctx).
		Where("(payment_status = ? AND NOT "+succeededTransactionExists+") OR (payment_status <> ? AND "+succeededTransactionExists+")",
			models.RequestPaymentPaid, string(models.TransactionStatusSucceeded),
			models.RequestPaymentPaid, string(models.TransactionStatusSucceeded)).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]ProjectionDrift, 0, len(rows))
	for _, row := range rows {
		derived := models.RequestPaymentPaid
		if row.PaymentStatus == models.RequestPaymentPaid {
			derived = models.RequestPaymentPending
		}
		out = append(out, ProjectionDrift{
			RequestID:     row.ID,
			RequestNumber: row.RequestNumber,
			Stored:        row.PaymentStatus,
			Derived:       derived,
		})
	}
	return out, nil
}

func (r *gormRepository) LoadReceiptSource(ctx context.Context, transactionID uint) (*ReceiptSource, error) {
	var src ReceiptSource
	err := r.conn(ctx).Table("payment_transactions AS pt").
		Select(`pt.id AS transaction_id, pt.status, pt.amount, pt.processing_fee, pt.net_amount, pt.currency,
			pt.external_transaction_id, pt.payment_intent_id, pt.description, pt.completed_at,
			dr.id AS request_id, dr.request_number,
			c.id AS client_id, c.first_name, c.middle_name, c.last_name, c.suffix,
			c.email AS client_email, c.phone AS client_phone,
			dt.name AS document_type, pm.name AS payment_method`).
		Joins("JOIN document_requests dr ON dr.id = pt.request_id").
		Joins("JOIN clients c ON c.id = dr.client_id").
		Joins("JOIN document_types dt ON dt.id = dr.document_type_id").
		Joins("LEFT JOIN payment_methods pm ON pm.id = COALESCE(pt.payment_method_id, dr.payment_method_id)").
		Where("pt.id = ?", transactionID).
		Limit(1).
		Scan(&src).Error
	if err != nil {
		return nil, err
	}
	if src.TransactionID == 0 {
		return nil, ErrReceiptSourceIncomplete
	}
	return &src, nil
}

func (r *gormRepository) CreateReceiptIfNotExists(ctx context.Context, receipt *models.Receipt) (bool, *models.Receipt, error) {
	// Untargeted: a racing insert collides on transaction_id and receipt_number at once.
	tx := r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(receipt)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := models.FindReceiptByTransactionID(r.conn(ctx), receipt.TransactionID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *gormRepository) FindReceiptByTransactionID(ctx context.Context, transactionID uint) (*models.Receipt, error) {
	return models.FindReceiptByTransactionID(r.conn(ctx), transactionID)
}

func (r *gormRepository) FindOrphanTransactions(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	q := r.conn(ctx).Model(&models.PaymentTransaction{}).
		Select("payment_transactions.*").
		Joins("LEFT JOIN receipts r ON r.transaction_id = payment_transactions.id").
		Where("payment_transactions.status = ? AND r.id IS NULL", string(models.TransactionStatusSucceeded)).
		Order("payment_transactions.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
