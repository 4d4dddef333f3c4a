package storage_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/bulkload/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/bulkload/pkg/batch/core/config"
	"github.com/tigerroll/bulkload/pkg/batch/support/util/exception"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want storage.Ref
	}{
		{"data/large.csv", storage.Ref{Scheme: "file", Path: "data/large.csv"}},
		{"file:///tmp/large.csv", storage.Ref{Scheme: "file", Path: "/tmp/large.csv"}},
		{"gs://bucket/path/to/large.csv", storage.Ref{Scheme: "gs", Bucket: "bucket", Path: "path/to/large.csv"}},
	}
	for _, tc := range cases {
		got, err := storage.ParseRef(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "gs://bucket-only", "s3://bucket/key"} {
		_, err := storage.ParseRef(bad)
		assert.True(t, exception.IsKind(err, exception.KindConfig), bad)
	}
}

func TestResolver_OpensLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte("column1\n"), 0o600))

	r := storage.NewResolver(local.NewOpener(), gcs.NewOpener(config.GCSConfig{}))
	defer r.Close()

	rc, err := r.Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "column1\n", string(b))
}

func TestResolver_MissingFileIsConnectionError(t *testing.T) {
	r := storage.NewResolver(local.NewOpener())
	_, err := r.Open(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.True(t, exception.IsKind(err, exception.KindConnection))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolver_UnregisteredScheme(t *testing.T) {
	r := storage.NewResolver(local.NewOpener())
	_, err := r.Open(context.Background(), "gs://bucket/object.csv")
	assert.ErrorContains(t, err, `no dataset opener registered for scheme "gs"`)
}

func TestGCSClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(config.GCSConfig{}))
	assert.Len(t, gcs.ClientOptions(config.GCSConfig{Endpoint: "http://localhost:4443/storage/v1/", WithoutAuthentication: true}), 2)
}
