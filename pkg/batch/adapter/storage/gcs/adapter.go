// Package gcs opens datasets stored in Google Cloud Storage.
package gcs

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	bstorage "github.com/tigerroll/bulkload/pkg/batch/adapter/storage"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/logger"
)

// Opener implements storage.DatasetOpener for gs:// references. The client is created on
// first use so processes that never read from GCS need no credentials.
type Opener struct {
	cfg config.GCSConfig

	once    sync.Once
	client  *storage.Client
	initErr error
}

// NewOpener creates a GCS opener.
func NewOpener(cfg config.GCSConfig) *Opener {
	return &Opener{cfg: cfg}
}

// ClientOptions translates cfg into client options.
func ClientOptions(cfg config.GCSConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.WithoutAuthentication {
		opts = append(opts, option.WithoutAuthentication())
	}
	return opts
}

// Scheme implements storage.DatasetOpener.
func (*Opener) Scheme() string { return "gs" }

// Open implements storage.DatasetOpener. The returned reader streams the object.
func (o *Opener) Open(ctx context.Context, ref bstorage.Ref) (io.ReadCloser, error) {
	o.once.Do(func() {
		// The client outlives ctx; it is closed by Close.
		o.client, o.initErr = storage.NewClient(context.WithoutCancel(ctx), ClientOptions(o.cfg)...)
	})
	if o.initErr != nil {
		return nil, o.initErr
	}
	r, err := o.client.Bucket(ref.Bucket).Object(ref.Path).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Opened gs://%s/%s (%d bytes)", ref.Bucket, ref.Path, r.Attrs.Size)
	return r, nil
}

// Close implements storage.DatasetOpener.
func (o *Opener) Close() error {
	if o.client == nil {
		return nil
	}
	return o.client.Close()
}
