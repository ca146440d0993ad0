package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gitadpal/voran/internal/domain"
)

// multipartThreshold is the raw size above which archives use multipart
// upload.
const multipartThreshold = minPartSize

// RawArchive stores fetched source responses content-addressed by their
// keccak256 hash, so a signed payload's rawHash is enough to retrieve the
// bytes it commits to.
type RawArchive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
}

// NewRawArchive creates a RawArchive writing under prefix (e.g. "raw/").
func NewRawArchive(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *RawArchive {
	return &RawArchive{writer: writer, reader: reader, prefix: prefix}
}

// Path returns the object key for a 0x-prefixed raw hash.
func (a *RawArchive) Path(rawHash string) string {
	return a.prefix + strings.TrimPrefix(strings.ToLower(rawHash), "0x")
}

// Put uploads raw under its hash. An object that already exists is left
// untouched, since equal hashes mean equal bytes.
func (a *RawArchive) Put(ctx context.Context, rawHash string, raw []byte, contentType string) (string, error) {
	path := a.Path(rawHash)

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive raw %s: %w", path, err)
		}
		if exists {
			return path, nil
		}
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var err error
	if int64(len(raw)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(raw), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(raw), contentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive raw %s: %w", path, err)
	}
	return path, nil
}

// Get returns the archived bytes for rawHash. A missing object yields an
// error wrapping domain.ErrNotFound.
func (a *RawArchive) Get(ctx context.Context, rawHash string) ([]byte, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: raw archive has no reader: %w", domain.ErrNotFound)
	}
	body, err := a.reader.Get(ctx, a.Path(rawHash))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read raw %s: %w", rawHash, err)
	}
	return data, nil
}

// List returns the archived responses whose raw hash starts with hashPrefix.
// An empty prefix lists the whole archive.
func (a *RawArchive) List(ctx context.Context, hashPrefix string) ([]domain.ArchivedRaw, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: raw archive has no reader: %w", domain.ErrNotFound)
	}
	infos, err := a.reader.List(ctx, a.Path(hashPrefix))
	if err != nil {
		return nil, err
	}

	out := make([]domain.ArchivedRaw, 0, len(infos))
	for _, info := range infos {
		name, ok := strings.CutPrefix(info.Path, a.prefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			continue
		}
		out = append(out, domain.ArchivedRaw{
			RawHash:      "0x" + name,
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	return out, nil
}
