package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Gobusters/ectologger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	Timeout         time.Duration
}

// GCSRemover deletes every object under "<entity>/<id>/" in a bucket.
type GCSRemover struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
	logger  ectologger.Logger
}

func NewGCSRemover(ctx context.Context, cfg GCSConfig, logger ectologger.Logger) (*GCSRemover, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("missing GCS bucket name")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GCSRemover{
		client:  client,
		bucket:  cfg.Bucket,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (r *GCSRemover) Backend() string { return "gcs" }

func (r *GCSRemover) Close() error {
	return r.client.Close()
}

func (r *GCSRemover) Remove(ctx context.Context, entity string, id any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prefix := Key(entity, id) + "/"
	bucket := r.client.Bucket(r.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	removed := 0
	var errs []error
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list GCS objects under %q: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", attrs.Name, r.bucket, err))
			continue
		}
		removed++
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"prefix":  prefix,
		"removed": removed,
	}).Debug("Removed record assets")

	return errors.Join(errs...)
}
