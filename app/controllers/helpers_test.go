package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsk_controller_test"

type testEnv struct {
	db    *gorm.DB
	svc   *payment.Service
	app   *fiber.App
	txnID uint
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	pending := models.RequestStatus{Name: models.RequestStagePendingPayment}
	require.NoError(t, db.Create(&pending).Error)
	require.NoError(t, db.Create(&models.RequestStatus{Name: models.RequestStagePaymentConfirmed}).Error)
	require.NoError(t, db.Create(&models.PaymentMethod{Code: "gcash", Name: "GCash", IsOnline: true, IsActive: true}).Error)

	docType := models.DocumentType{Name: "Certificate of Residency", BaseFee: decimal.RequireFromString("75.00"), IsActive: true}
	require.NoError(t, db.Create(&docType).Error)
	client := models.Client{FirstName: "Maria", LastName: "Reyes", Email: "maria@example.ph"}
	require.NoError(t, db.Create(&client).Error)

	req := models.DocumentRequest{
		RequestNumber:  "REQ-2025-0100",
		ClientID:       client.ID,
		DocumentTypeID: docType.ID,
		StatusID:       pending.ID,
		PaymentStatus:  models.RequestPaymentPending,
		BaseFee:        decimal.RequireFromString("75.00"),
		TotalFee:       decimal.RequireFromString("75.00"),
	}
	require.NoError(t, db.Create(&req).Error)

	intent := "pi_ctrl"
	txn := models.PaymentTransaction{
		RequestID:             req.ID,
		ExternalTransactionID: "pay_ctrl",
		PaymentIntentID:       &intent,
		Amount:                decimal.RequireFromString("75.00"),
		Currency:              models.DefaultCurrency,
		Status:                models.TransactionStatusPending,
	}
	require.NoError(t, db.Create(&txn).Error)

	svc := payment.NewServiceFromDB(db, paymongo.NewVerifier(testWebhookSecret, 0, false), 0)
	return &testEnv{db: db, svc: svc, app: fiber.New(), txnID: txn.ID}
}

func paidEvent(eventID string) []byte {
	return []byte(fmt.Sprintf(`{"data":{"id":%q,"type":"event","attributes":{
		"type":"payment.paid","livemode":false,"created_at":1741944600,
		"data":{"id":"pay_ctrl","type":"payment","attributes":{
			"amount":7500,"fee":188,"currency":"PHP","status":"paid",
			"payment_intent_id":"pi_ctrl","paid_at":1741944000,"source":{"type":"gcash"}}}}}}`, eventID))
}

func signed(payload []byte) string {
	return paymongo.Sign(payload, testWebhookSecret, time.Now(), false)
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body []byte, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}
