package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
)

// ObjectStore is the subset of bucket operations the bucket source needs
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// R2Config holds Cloudflare R2 (or any S3-compatible) credentials
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Endpoint overrides the account endpoint
	Endpoint string
}

// Configured reports whether enough settings are present to build a client
func (c R2Config) Configured() bool {
	return c.BucketName != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" &&
		(c.AccountID != "" || c.Endpoint != "")
}

// R2Client is an S3 client bound to one bucket
type R2Client struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
	log        zerolog.Logger
}

// NewR2Client creates a client for an R2 bucket
func NewR2Client(ctx context.Context, cfg R2Config, log zerolog.Logger) (*R2Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Client{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     cfg.BucketName,
		log:        log.With().Str("client", "r2").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// List returns every object under prefix
func (c *R2Client) List(ctx context.Context, prefix string) ([]types.Object, error) {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []types.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

// Download fetches one object into memory
func (c *R2Client) Download(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	n, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Int64("bytes", n).Msg("Object downloaded")
	return buf.Bytes(), nil
}

// BucketSource parses every CSV object under a prefix
type BucketSource struct {
	store  ObjectStore
	prefix string
	log    zerolog.Logger
}

// NewBucketSource creates a bucket source over store
func NewBucketSource(store ObjectStore, prefix string, log zerolog.Logger) *BucketSource {
	return &BucketSource{
		store:  store,
		prefix: prefix,
		log:    log.With().Str("component", "bucket_source").Logger(),
	}
}

// Load implements Source
func (s *BucketSource) Load(ctx context.Context, _ Request) ([]domain.Bar, error) {
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	files := 0
	for _, obj := range objects {
		if obj.Key == nil || !strings.HasSuffix(strings.ToLower(*obj.Key), ".csv") {
			continue
		}
		data, err := s.store.Download(ctx, *obj.Key)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", *obj.Key, err)
		}
		bars = append(bars, parsed...)
		files++
	}

	s.log.Debug().Int("files", files).Int("bars", len(bars)).Msg("Bucket data parsed")
	if files == 0 {
		return nil, fmt.Errorf("no CSV objects under prefix %q", s.prefix)
	}
	return bars, nil
}
