package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	exists  bool
	objects map[string][]byte
	meta    map[string]map[string]string
	created *s3.CreateBucketInput
	putErr  error
	puts    int
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{exists: true, objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (m *memoryBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !m.exists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *memoryBucket) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.created = in
	m.exists = true
	return &s3.CreateBucketOutput{}, nil
}

func (m *memoryBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memoryBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.puts++
	m.objects[aws.ToString(in.Key)] = data
	m.meta[aws.ToString(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func testReceipt() *models.Receipt {
	return &models.Receipt{
		ReceiptNumber: "RCP-00000042",
		TransactionID: 42,
		RequestNumber: "REQ-2025-0001",
		ClientName:    "Juan Santos Dela Cruz Jr.",
		DocumentType:  "Barangay Clearance",
		PaymentMethod: "GCash",
		Amount:        decimal.RequireFromString("150.00"),
		Currency:      "PHP",
		PaymentStatus: "paid",
		ReceiptDate:   time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("PHT", 8*3600)),
	}
}

func TestObjectKey(t *testing.T) {
	r := testReceipt()

	c := newClient(newMemoryBucket(), config.ArchiveConfig{Prefix: "/receipts/"})
	assert.Equal(t, "receipts/2025/03/RCP-00000042.json", c.ObjectKey(r))

	c = newClient(newMemoryBucket(), config.ArchiveConfig{})
	assert.Equal(t, "2025/03/RCP-00000042.json", c.ObjectKey(r))
}

func TestPutReceipt_WritesOnce(t *testing.T) {
	bucket := newMemoryBucket()
	c := newClient(bucket, config.ArchiveConfig{Bucket: "docpay", Prefix: "receipts"})
	ctx := context.Background()

	key, err := c.PutReceipt(ctx, testReceipt())
	require.NoError(t, err)
	assert.Equal(t, "receipts/2025/03/RCP-00000042.json", key)
	assert.Equal(t, "42", bucket.meta[key]["transaction-id"])

	changed := testReceipt()
	changed.ClientName = "Someone Else"
	again, err := c.PutReceipt(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.Equal(t, 1, bucket.puts)

	got, err := c.GetReceipt(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Juan Santos Dela Cruz Jr.", got.ClientName)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("150")))
}

func TestPutReceipt_UploadError(t *testing.T) {
	bucket := newMemoryBucket()
	bucket.putErr = errors.New("access denied")
	c := newClient(bucket, config.ArchiveConfig{Bucket: "docpay"})

	_, err := c.PutReceipt(context.Background(), testReceipt())
	assert.ErrorContains(t, err, "access denied")
}

func TestEnsureBucket(t *testing.T) {
	t.Run("created outside prod", func(t *testing.T) {
		bucket := newMemoryBucket()
		bucket.exists = false
		c := newClient(bucket, config.ArchiveConfig{Bucket: "docpay", Region: "ap-southeast-1"})

		require.NoError(t, c.ensureBucket(context.Background(), true))
		require.NotNil(t, bucket.created)
		assert.Equal(t, types.BucketLocationConstraint("ap-southeast-1"), bucket.created.CreateBucketConfiguration.LocationConstraint)
	})

	t.Run("custom endpoint skips location", func(t *testing.T) {
		bucket := newMemoryBucket()
		bucket.exists = false
		c := newClient(bucket, config.ArchiveConfig{Bucket: "docpay", Region: "us-west-001", Endpoint: "http://minio:9000"})

		require.NoError(t, c.ensureBucket(context.Background(), true))
		assert.Nil(t, bucket.created.CreateBucketConfiguration)
	})

	t.Run("missing in prod", func(t *testing.T) {
		bucket := newMemoryBucket()
		bucket.exists = false
		c := newClient(bucket, config.ArchiveConfig{Bucket: "docpay"})

		assert.Error(t, c.ensureBucket(context.Background(), false))
		assert.Nil(t, bucket.created)
	})
}

func TestNewClient_Disabled(t *testing.T) {
	_, err := NewClient(context.Background(), config.ArchiveConfig{}, "prod")
	assert.ErrorIs(t, err, ErrDisabled)
}
