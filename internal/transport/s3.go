package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/tanq16/hanzo/internal/utils"
)

// S3 downloads s3://bucket/key targets. Buckets can live in any region,
// so the client for each bucket is built after resolving its region once.
type S3 struct {
	cfg     aws.Config
	bufSize int
	log     zerolog.Logger
	mu      sync.Mutex
	regions map[string]string
}

func NewS3(ctx context.Context, profile string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(profile),
		config.WithRetryMode("adaptive"),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return &S3{
		cfg:     cfg,
		bufSize: utils.DefaultBufferSize,
		log:     utils.GetLogger("transport-s3"),
		regions: make(map[string]string),
	}, nil
}

func (t *S3) Issue(ctx context.Context, req Request) Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &reqHandle{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go t.run(ctx, req, h.events)
	return h
}

func (t *S3) run(ctx context.Context, req Request, events chan<- Event) {
	defer close(events)
	bucket, key, err := ParseS3URL(req.Target)
	if err != nil {
		events <- Event{Finished: &Finished{Err: Fatal(err)}}
		return
	}
	client, err := t.clientFor(ctx, bucket)
	if err != nil {
		events <- Event{Finished: &Finished{Err: classifyS3(err)}}
		return
	}
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		events <- Event{Finished: &Finished{Err: classifyS3(err)}}
		return
	}
	// HeadObject reports the full object size, so the total is already
	// absolute even when resuming partway in.
	var total int64
	if head.ContentLength != nil {
		total = *head.ContentLength
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if req.Offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", req.Offset))
		t.log.Debug().Str("bucket", bucket).Str("key", key).Int64("offset", req.Offset).Msg("Resuming with range request")
	}
	obj, err := client.GetObject(ctx, input)
	if err != nil {
		events <- Event{Finished: &Finished{Err: classifyS3(err)}}
		return
	}
	defer obj.Body.Close()
	if err := stream(events, obj.Body, req.Offset, total, t.bufSize); err != nil {
		events <- Event{Finished: &Finished{Err: err}}
		return
	}
	events <- Event{Finished: &Finished{}}
}

func (t *S3) clientFor(ctx context.Context, bucket string) (*s3.Client, error) {
	t.mu.Lock()
	region, ok := t.regions[bucket]
	t.mu.Unlock()
	if !ok {
		base := s3.NewFromConfig(t.cfg, s3Options)
		resolved, err := manager.GetBucketRegion(ctx, base, bucket)
		if err != nil {
			return nil, err
		}
		region = resolved
		t.mu.Lock()
		t.regions[bucket] = region
		t.mu.Unlock()
		t.log.Debug().Str("bucket", bucket).Str("region", region).Msg("Resolved bucket region")
	}
	return s3.NewFromConfig(t.cfg, s3Options, func(o *s3.Options) {
		o.Region = region
	}), nil
}

func s3Options(o *s3.Options) {
	// Disable checksum validation warning
	o.DisableLogOutputChecksumValidationSkipped = true
}

func ParseS3URL(rawURL string) (string, string, error) {
	trimmed := strings.TrimPrefix(rawURL, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q, expected s3://bucket/key", rawURL)
	}
	return parts[0], parts[1], nil
}

// classifyS3 maps SDK errors onto the error taxonomy. Missing objects and
// buckets become ErrNotFound; any other API error is final because the
// service already rejected the request. Connection-level errors pass
// through untouched so they stay retryable.
func classifyS3(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%v: %w", err, ErrNotFound)
		}
		return Fatal(err)
	}
	return err
}
