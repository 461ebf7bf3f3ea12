package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsk_test_secret"

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	svc     *Service
	request models.DocumentRequest
	client  models.Client
	txn     models.PaymentTransaction

	stagePending   models.RequestStatus
	stageConfirmed models.RequestStatus
	gcash          models.PaymentMethod
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{db: db}
	f.stagePending = models.RequestStatus{Name: models.RequestStagePendingPayment}
	f.stageConfirmed = models.RequestStatus{Name: models.RequestStagePaymentConfirmed}
	require.NoError(t, db.Create(&f.stagePending).Error)
	require.NoError(t, db.Create(&f.stageConfirmed).Error)

	f.gcash = models.PaymentMethod{Code: "gcash", Name: "GCash", IsOnline: true, IsActive: true}
	require.NoError(t, db.Create(&f.gcash).Error)
	require.NoError(t, db.Create(&models.PaymentMethod{Code: "cash", Name: "Cash", IsActive: true}).Error)

	docType := models.DocumentType{Name: "Barangay Clearance", BaseFee: decimal.RequireFromString("150.00"), IsActive: true}
	require.NoError(t, db.Create(&docType).Error)

	f.client = models.Client{FirstName: "Juan", MiddleName: "Santos", LastName: "Dela Cruz", Suffix: "Jr.", Email: "juan@example.ph", Phone: "09171234567"}
	require.NoError(t, db.Create(&f.client).Error)

	f.request = models.DocumentRequest{
		RequestNumber:  "REQ-2025-0001",
		ClientID:       f.client.ID,
		DocumentTypeID: docType.ID,
		StatusID:       f.stagePending.ID,
		PaymentStatus:  models.RequestPaymentPending,
		BaseFee:        decimal.RequireFromString("150.00"),
		TotalFee:       decimal.RequireFromString("150.00"),
		Purpose:        "Employment",
	}
	require.NoError(t, db.Create(&f.request).Error)

	f.txn = f.addTransaction(t, "pay_123", "pi_777", "150.00")

	f.svc = NewServiceFromDB(db, &paymongo.Verifier{Secret: testWebhookSecret}, 0)
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.sweeper.now = f.svc.now
	return f
}

func (f *fixture) addTransaction(t *testing.T, externalID, intentID, amount string) models.PaymentTransaction {
	t.Helper()
	txn := models.PaymentTransaction{
		RequestID:             f.request.ID,
		ExternalTransactionID: externalID,
		Amount:                decimal.RequireFromString(amount),
		Currency:              models.DefaultCurrency,
		Status:                models.TransactionStatusPending,
		Description:           "Barangay Clearance fee",
	}
	if intentID != "" {
		txn.PaymentIntentID = &intentID
	}
	require.NoError(t, f.db.Create(&txn).Error)
	return txn
}

func (f *fixture) reloadTxn(t *testing.T, id uint) models.PaymentTransaction {
	t.Helper()
	var txn models.PaymentTransaction
	require.NoError(t, f.db.First(&txn, id).Error)
	return txn
}

func (f *fixture) reloadRequest(t *testing.T) models.DocumentRequest {
	t.Helper()
	var req models.DocumentRequest
	require.NoError(t, f.db.First(&req, f.request.ID).Error)
	return req
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) deliver(t *testing.T, payload []byte) (*WebhookResult, error) {
	t.Helper()
	header := paymongo.Sign(payload, testWebhookSecret, fixedNow, false)
	return f.svc.HandleWebhook(context.Background(), payload, header)
}

func paymentEvent(eventID, eventType, resourceID, intentID string, amount, fee int64) []byte {
	return []byte(fmt.Sprintf(`{
		"data": {
			"id": %q,
			"type": "event",
			"attributes": {
				"type": %q,
				"livemode": false,
				"created_at": 1741944600,
				"data": {
					"id": %q,
					"type": "payment",
					"attributes": {
						"amount": %d,
						"fee": %d,
						"currency": "PHP",
						"status": "paid",
						"payment_intent_id": %q,
						"paid_at": 1741944000,
						"source": { "type": "gcash" }
					}
				}
			}
		}
	}`, eventID, eventType, resourceID, amount, fee, intentID))
}
