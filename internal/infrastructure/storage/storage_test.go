package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempStore_PutAndRelease(t *testing.T) {
	store, err := NewTempStore(t.TempDir(), nil)
	require.NoError(t, err)

	doc, err := store.Put("invoice-15.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "invoice-15.pdf", doc.Name())
	assert.Equal(t, 8, doc.Size())
	assert.FileExists(t, doc.Path())

	b, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(b))

	require.NoError(t, doc.Release())
	require.NoError(t, doc.Release())
	assert.True(t, doc.Released())
	assert.NoFileExists(t, doc.Path())

	_, err = doc.Bytes()
	assert.ErrorIs(t, err, ErrReleased)
}

func TestDocument_AcquireDefersRelease(t *testing.T) {
	store, err := NewTempStore(t.TempDir(), nil)
	require.NoError(t, err)
	doc, err := store.Put("invoice-15.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	require.NoError(t, doc.Acquire())
	require.NoError(t, doc.Release())
	assert.True(t, doc.Released())
	assert.FileExists(t, doc.Path())
	assert.ErrorIs(t, doc.Acquire(), ErrReleased)

	b, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(b))

	require.NoError(t, doc.Done())
	assert.NoFileExists(t, doc.Path())
	_, err = doc.Bytes()
	assert.ErrorIs(t, err, ErrReleased)
	require.NoError(t, doc.Done())
}

func TestTempStore_CreatesDir(t *testing.T) {
	dir := t.TempDir() + "/nested/docs"
	_, err := NewTempStore(dir, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.objects[r.URL.Path] = body
	f.types[r.URL.Path] = r.Header.Get("Content-Type")
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func TestNewS3Sharer_RequiresBucket(t *testing.T) {
	_, err := NewS3Sharer(context.Background(), ShareConfig{}, nil)
	assert.Error(t, err)
}

func TestS3Sharer_Share(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AWS_PROFILE", "")

	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	sharer, err := NewS3Sharer(context.Background(), ShareConfig{
		Bucket:       "docs",
		Endpoint:     srv.URL,
		AccessKey:    "key",
		SecretKey:    "secret",
		Prefix:       "invoices/",
		UsePathStyle: true,
		LinkTTL:      time.Hour,
	}, nil)
	require.NoError(t, err)

	store, err := NewTempStore(t.TempDir(), nil)
	require.NoError(t, err)
	doc, err := store.Put("invoice-15.pdf", []byte("%PDF-1.7 body"))
	require.NoError(t, err)

	link, err := sharer.Share(context.Background(), "15.pdf", doc)
	require.NoError(t, err)

	assert.Equal(t, []byte("%PDF-1.7 body"), fake.objects["/docs/invoices/15.pdf"])
	assert.Equal(t, "application/pdf", fake.types["/docs/invoices/15.pdf"])

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/docs/invoices/15.pdf", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestS3Sharer_ReleasedDocument(t *testing.T) {
	sharer, err := NewS3Sharer(context.Background(), ShareConfig{Bucket: "docs", AccessKey: "k", SecretKey: "s"}, nil)
	require.NoError(t, err)

	store, err := NewTempStore(t.TempDir(), nil)
	require.NoError(t, err)
	doc, err := store.Put("a.pdf", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, doc.Release())

	_, err = sharer.Share(context.Background(), "a.pdf", doc)
	assert.ErrorIs(t, err, ErrReleased)
}
