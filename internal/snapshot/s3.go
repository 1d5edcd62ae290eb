package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the snapshot objects.
type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // non-empty selects path-style addressing (MinIO and similar)

	// History additionally keeps every snapshot under a timestamped key next
	// to Key.
	History bool
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads each snapshot to an S3-compatible bucket.
type S3Destination struct {
	client objectPutter
	cfg    S3Config
	now    func() time.Time
}

// NewS3Destination loads the default AWS credential chain and returns a
// destination for cfg.
func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("s3 snapshot needs a bucket and key")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Destination{
		client: s3.NewFromConfig(awsCfg, s3opts...),
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// Write uploads data to the configured key, and to a history key when
// enabled.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	keys := []string{d.cfg.Key}
	if d.cfg.History {
		keys = append(keys, d.historyKey())
	}
	for _, key := range keys {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return fmt.Errorf("s3 put %s: %w", key, err)
		}
	}
	return nil
}

// historyKey turns "snap/sessions.jsonl" into
// "snap/history/sessions-20260301T120000Z.jsonl".
func (d *S3Destination) historyKey() string {
	dir, file := path.Split(d.cfg.Key)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	stamp := d.now().UTC().Format("20060102T150405Z")
	return dir + "history/" + base + "-" + stamp + ext
}
