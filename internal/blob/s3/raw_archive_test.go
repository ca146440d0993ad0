package s3blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

type memBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	puts       int
	multiparts int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.multiparts++
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for path, b := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func TestRawArchivePath(t *testing.T) {
	a := NewRawArchive(nil, nil, "raw/")
	assert.Equal(t, "raw/abcdef", a.Path("0xABCDEF"))
	assert.Equal(t, "raw/abcdef", a.Path("abcdef"))
}

func TestRawArchiveRoundTripAndDedup(t *testing.T) {
	blobs := newMemBlobs()
	a := NewRawArchive(blobs, blobs, "raw/")
	ctx := context.Background()

	path, err := a.Put(ctx, "0x01", []byte(`{"price":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "raw/01", path)

	_, err = a.Put(ctx, "0x01", []byte(`{"price":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 1, blobs.puts)

	got, err := a.Get(ctx, "0x01")
	require.NoError(t, err)
	assert.Equal(t, `{"price":1}`, string(got))

	_, err = a.Get(ctx, "0x02")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRawArchiveListByHashPrefix(t *testing.T) {
	blobs := newMemBlobs()
	a := NewRawArchive(blobs, blobs, "raw/")
	ctx := context.Background()

	for _, h := range []string{"0xab01", "0xab02", "0xcd03"} {
		_, err := a.Put(ctx, h, []byte(h), "")
		require.NoError(t, err)
	}
	blobs.objects["raw/nested/ab99"] = []byte("x")
	blobs.objects["other/ab04"] = []byte("x")

	got, err := a.List(ctx, "0xAB")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xab01", got[0].RawHash)
	assert.Equal(t, "raw/ab01", got[0].Path)
	assert.Equal(t, int64(6), got[0].Size)
	assert.Equal(t, "0xab02", got[1].RawHash)

	all, err := a.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = NewRawArchive(blobs, nil, "raw/").List(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRawArchiveLargeUsesMultipart(t *testing.T) {
	blobs := newMemBlobs()
	a := NewRawArchive(blobs, blobs, "raw/")

	big := bytes.Repeat([]byte("x"), int(multipartThreshold)+1)
	_, err := a.Put(context.Background(), "0xff", big, "")
	require.NoError(t, err)
	assert.Equal(t, 0, blobs.puts)
	assert.Equal(t, 1, blobs.multiparts)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio.local", normaliseEndpoint("minio.local", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
