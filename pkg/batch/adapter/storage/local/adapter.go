// Package local opens datasets from the local file system.
package local

import (
	"context"
	"io"
	"os"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage"
)

// Opener implements storage.DatasetOpener for local files.
type Opener struct{}

// NewOpener creates a local file opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Scheme implements storage.DatasetOpener.
func (*Opener) Scheme() string { return "file" }

// Open implements storage.DatasetOpener.
func (*Opener) Open(_ context.Context, ref storage.Ref) (io.ReadCloser, error) {
	return os.Open(ref.Path)
}

// Close implements storage.DatasetOpener.
func (*Opener) Close() error { return nil }
