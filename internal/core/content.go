package core

import (
	"archive/zip"
	"context"
	"crypto/md5"  //nolint:gosec // repository checksum
	"crypto/sha1" //nolint:gosec // repository checksum
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"cargohold/internal/blob"
	"cargohold/pkg/domain"
)

// Checksum algorithms computed for every stored file.
const (
	ChecksumMD5    = "md5"
	ChecksumSHA1   = "sha1"
	ChecksumSHA256 = "sha256"
)

var archiveExtensions = map[string]bool{
	".jar": true, ".war": true, ".ear": true, ".aar": true, ".zip": true, ".nupkg": true,
}

// Content describes stored artifact bytes.
type Content struct {
	Key       string
	Size      int64
	Checksums map[string]string
	// Filenames lists the entries of an archive, or the file name itself.
	Filenames []string
}

// ContentStore keeps artifact files in a blob store under
// storageId/repositoryId/path.
type ContentStore struct {
	blobs blob.Store
}

// NewContentStore wraps blobs.
func NewContentStore(blobs blob.Store) *ContentStore {
	return &ContentStore{blobs: blobs}
}

// Blobs returns the underlying blob store.
func (c *ContentStore) Blobs() blob.Store { return c.blobs }

// Put stores r at the artifact path. The upload is spooled to a temporary
// file so checksums, size and archive listing come from the same bytes that
// are written.
func (c *ContentStore) Put(ctx context.Context, storageID, repositoryID, artifactPath string, r io.Reader, contentType string, overwrite bool) (Content, error) {
	key := blob.ArtifactKey(storageID, repositoryID, artifactPath)
	tmp, err := os.CreateTemp("", "cargohold-upload-*")
	if err != nil {
		return Content{}, fmt.Errorf("spool upload: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	sums := map[string]hash.Hash{
		ChecksumMD5:    md5.New(),
		ChecksumSHA1:   sha1.New(),
		ChecksumSHA256: sha256.New(),
	}
	writers := []io.Writer{tmp}
	for _, h := range sums {
		writers = append(writers, h)
	}
	size, err := io.Copy(io.MultiWriter(writers...), r)
	if err != nil {
		return Content{}, fmt.Errorf("spool upload: %w", err)
	}
	out := Content{Key: key, Size: size, Checksums: make(map[string]string, len(sums))}
	for algo, h := range sums {
		out.Checksums[algo] = hex.EncodeToString(h.Sum(nil))
	}
	if out.Filenames, err = listFilenames(tmp, size, artifactPath); err != nil {
		return Content{}, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Content{}, fmt.Errorf("rewind upload: %w", err)
	}
	if _, err := c.blobs.Put(ctx, key, tmp, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{ChecksumSHA1: out.Checksums[ChecksumSHA1]},
		Overwrite:   overwrite,
	}); err != nil {
		return Content{}, fmt.Errorf("store %s: %w", key, err)
	}
	return out, nil
}

// Open returns the stored bytes of an artifact path.
func (c *ContentStore) Open(ctx context.Context, storageID, repositoryID, artifactPath string) (blob.Info, io.ReadCloser, error) {
	return c.blobs.Get(ctx, blob.ArtifactKey(storageID, repositoryID, artifactPath))
}

// Backup is a copy of artifact bytes taken before they are overwritten.
type Backup struct {
	key  string
	info blob.Info
	file *os.File
}

// Backup copies the bytes stored at the artifact path to a temporary file.
// It returns nil when the path holds nothing. Callers Discard the backup.
func (c *ContentStore) Backup(ctx context.Context, storageID, repositoryID, artifactPath string) (*Backup, error) {
	key := blob.ArtifactKey(storageID, repositoryID, artifactPath)
	info, rc, err := c.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup %s: %w", key, err)
	}
	defer rc.Close()
	tmp, err := os.CreateTemp("", "cargohold-backup-*")
	if err != nil {
		return nil, fmt.Errorf("backup %s: %w", key, err)
	}
	b := &Backup{key: key, info: info, file: tmp}
	if _, err := io.Copy(tmp, rc); err != nil {
		b.Discard()
		return nil, fmt.Errorf("backup %s: %w", key, err)
	}
	return b, nil
}

// Restore writes the backed up bytes over whatever the key holds now.
func (c *ContentStore) Restore(ctx context.Context, b *Backup) error {
	if b == nil {
		return nil
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("restore %s: %w", b.key, err)
	}
	if _, err := c.blobs.Put(ctx, b.key, b.file, blob.PutOptions{
		ContentType: b.info.ContentType,
		Metadata:    b.info.Metadata,
		Overwrite:   true,
	}); err != nil {
		return fmt.Errorf("restore %s: %w", b.key, err)
	}
	return nil
}

// Discard removes the temporary copy. It is safe on a nil backup.
func (b *Backup) Discard() {
	if b == nil {
		return
	}
	_ = b.file.Close()
	_ = os.Remove(b.file.Name())
}

// Delete removes the stored bytes and reports whether they existed.
func (c *ContentStore) Delete(ctx context.Context, storageID, repositoryID, artifactPath string) (bool, error) {
	return c.blobs.Delete(ctx, blob.ArtifactKey(storageID, repositoryID, artifactPath))
}

func listFilenames(ra io.ReaderAt, size int64, artifactPath string) ([]string, error) {
	if !archiveExtensions[strings.ToLower(path.Ext(artifactPath))] {
		return []string{path.Base(artifactPath)}, nil
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a readable archive: %v", domain.ErrInvalid, artifactPath, err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
