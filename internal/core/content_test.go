package core

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"  //nolint:gosec // checksum fixture
	"crypto/sha1" //nolint:gosec // checksum fixture
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	blobmemory "cargohold/internal/infra/blob/memory"
	"cargohold/pkg/domain"
)

func hexSum(sum []byte) string { return hex.EncodeToString(sum) }

func TestContentStoreChecksums(t *testing.T) {
	store := NewContentStore(blobmemory.New())
	data := []byte("cargohold")
	content, err := store.Put(context.Background(), "s", "r", "/files/a.txt", bytes.NewReader(data), "text/plain", false)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md5sum := md5.Sum(data)
	sha1sum := sha1.Sum(data)
	sha256sum := sha256.Sum256(data)
	want := map[string]string{
		ChecksumMD5:    hexSum(md5sum[:]),
		ChecksumSHA1:   hexSum(sha1sum[:]),
		ChecksumSHA256: hexSum(sha256sum[:]),
	}
	if diff := cmp.Diff(want, content.Checksums); diff != "" {
		t.Fatalf("checksum mismatch:\n%s", diff)
	}
	if content.Key != "s/r/files/a.txt" || content.Size != int64(len(data)) {
		t.Fatalf("unexpected content %+v", content)
	}
	info, rc, err := store.Open(context.Background(), "s", "r", "files/a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, data) || info.ContentType != "text/plain" || info.Metadata[ChecksumSHA1] != want[ChecksumSHA1] {
		t.Fatalf("unexpected stored blob %q %+v", got, info)
	}
}

func TestContentStoreListsArchiveEntries(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"org/cargo/Main.class", "META-INF/", "META-INF/MANIFEST.MF"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		_, _ = w.Write([]byte(name))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	store := NewContentStore(blobmemory.New())
	content, err := store.Put(context.Background(), "s", "r", "org/cargo/core/1.0/core-1.0.jar", &buf, "", false)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if diff := cmp.Diff([]string{"META-INF/MANIFEST.MF", "org/cargo/Main.class"}, content.Filenames); diff != "" {
		t.Fatalf("filenames mismatch:\n%s", diff)
	}
}

func TestContentStoreRejectsBrokenArchive(t *testing.T) {
	blobs := blobmemory.New()
	store := NewContentStore(blobs)
	_, err := store.Put(context.Background(), "s", "r", "broken.nupkg", bytes.NewReader([]byte("not a zip")), "", false)
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if list, _ := blobs.List(context.Background(), ""); len(list) != 0 {
		t.Fatalf("broken archive must not be stored")
	}
	if ok, err := store.Delete(context.Background(), "s", "r", "broken.nupkg"); err != nil || ok {
		t.Fatalf("expected nothing to delete, got %v %v", ok, err)
	}
}
