// Package storage opens datasets for streaming reads from wherever they live.
// A dataset reference is a local path, a file:// URI or a gs://bucket/object URI; each
// scheme is served by a DatasetOpener registered with a Resolver.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

const moduleName = "storage"

// DatasetOpener opens dataset references of one scheme.
type DatasetOpener interface {
	// Scheme returns the URI scheme served ("file", "gs").
	Scheme() string
	// Open returns a stream over the dataset. The caller closes it.
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
	// Close releases any client held by the opener.
	Close() error
}

// Ref is a parsed dataset reference.
type Ref struct {
	Scheme string
	// Bucket is empty for local files.
	Bucket string
	// Path is the file path or object name.
	Path string
}

// String returns the canonical form of r.
func (r Ref) String() string {
	if r.Scheme == "file" {
		return r.Path
	}
	return r.Scheme + "://" + r.Bucket + "/" + r.Path
}

// ParseRef parses a dataset reference. Anything without a scheme is a local path.
func ParseRef(ref string) (Ref, error) {
	if ref == "" {
		return Ref{}, exception.NewBatchError(moduleName, exception.KindConfig, "empty dataset reference", nil)
	}
	if !strings.Contains(ref, "://") {
		return Ref{Scheme: "file", Path: ref}, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return Ref{}, exception.NewBatchErrorf(moduleName, exception.KindConfig, "invalid dataset reference %q", ref, err)
	}
	switch u.Scheme {
	case "file":
		return Ref{Scheme: "file", Path: u.Host + u.Path}, nil
	case "gs":
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return Ref{}, exception.NewBatchErrorf(moduleName, exception.KindConfig, "dataset reference %q must be gs://bucket/object", ref)
		}
		return Ref{Scheme: "gs", Bucket: u.Host, Path: object}, nil
	default:
		return Ref{}, exception.NewBatchErrorf(moduleName, exception.KindConfig, "unsupported dataset scheme %q", u.Scheme)
	}
}

// Resolver dispatches dataset references to the opener for their scheme.
type Resolver struct {
	openers map[string]DatasetOpener
}

// NewResolver creates a Resolver over openers.
func NewResolver(openers ...DatasetOpener) *Resolver {
	m := make(map[string]DatasetOpener, len(openers))
	for _, o := range openers {
		m[o.Scheme()] = o
	}
	return &Resolver{openers: m}
}

// Open parses ref and opens it with the matching opener.
func (r *Resolver) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	opener, ok := r.openers[parsed.Scheme]
	if !ok {
		return nil, exception.NewBatchErrorf(moduleName, exception.KindConfig, "no dataset opener registered for scheme %q", parsed.Scheme)
	}
	rc, err := opener.Open(ctx, parsed)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindConnection, fmt.Sprintf("failed to open dataset %s", parsed), err)
	}
	return rc, nil
}

// Close closes every opener.
func (r *Resolver) Close() error {
	var lastErr error
	for _, o := range r.openers {
		if err := o.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
