package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// ErrDisabled is returned by NewClient when archiving is switched off.
var ErrDisabled = errors.New("receipt archive is disabled")

const contentTypeJSON = "application/json"

// objectAPI is the part of *s3.Client the archive uses.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client writes receipt snapshots to an S3 compatible bucket. Objects are
// write-once: an existing key is never overwritten.
type Client struct {
	api    objectAPI
	bucket string
	prefix string
	region string
	custom bool
}

// NewClient creates the S3 client and checks the bucket. Outside prod a
// missing bucket is created.
func NewClient(ctx context.Context, cfg config.ArchiveConfig, appEnv string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
			o.UseAccelerate = false
		}
	})

	c := newClient(s3Client, cfg)
	if err := c.ensureBucket(ctx, appEnv != "prod"); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] Initialized S3 client for bucket: %s", cfg.Bucket)
	return c, nil
}

func newClient(api objectAPI, cfg config.ArchiveConfig) *Client {
	return &Client{
		api:    api,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
		custom: cfg.Endpoint != "",
	}
}

func (c *Client) ensureBucket(ctx context.Context, create bool) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	if !create {
		return fmt.Errorf("bucket %s not accessible: %w", c.bucket, err)
	}

	log.Warnf("[Archive] Bucket %s not found, attempting to create it", c.bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}
	// AWS wants a location constraint outside us-east-1; S3 compatible
	// services usually reject it.
	if !c.custom && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// ObjectKey is <prefix>/YYYY/MM/<receipt number>.json, dated by issuance.
func (c *Client) ObjectKey(r *models.Receipt) string {
	d := r.ReceiptDate.UTC()
	name := fmt.Sprintf("%04d/%02d/%s.json", d.Year(), int(d.Month()), r.ReceiptNumber)
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

// PutReceipt uploads the receipt as JSON and returns its key. A receipt that
// is already archived is left untouched.
func (c *Client) PutReceipt(ctx context.Context, r *models.Receipt) (string, error) {
	key := c.ObjectKey(r)

	exists, err := c.ObjectExists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		log.Debugf("[Archive] %s already archived at %s", r.ReceiptNumber, key)
		return key, nil
	}

	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentTypeJSON),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"receipt-number": r.ReceiptNumber,
			"transaction-id": strconv.FormatUint(uint64(r.TransactionID), 10),
			"upload-source":  "docpay-archive",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Infof("[Archive] Uploaded s3://%s/%s", c.bucket, key)
	return key, nil
}

// GetReceipt downloads an archived receipt.
func (c *Client) GetReceipt(ctx context.Context, key string) (*models.Receipt, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	var r models.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", key, err)
	}
	return &r, nil
}

// ObjectExists checks if an object exists in the bucket
func (c *Client) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
