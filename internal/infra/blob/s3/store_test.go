package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"cargohold/internal/blob/core"
)

func TestStoreBasicFlow(t *testing.T) {
	store := NewMock(0)
	ctx := context.Background()
	if store.Driver() != core.DriverS3 || store.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store %s/%s", store.Driver(), store.Bucket())
	}
	key := "storage0/releases/a/b.txt"
	info, err := store.Put(ctx, key, bytes.NewReader([]byte("hello")), core.PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"layout": "raw"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.ContentType != "text/plain" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("ignored")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("world!")), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "world!" {
		t.Fatalf("get mismatch: %q", data)
	}
	if ok, err := store.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	store := NewMock(0)
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.Put(ctx, "", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	store := NewMock(2)
	ctx := context.Background()
	for _, k := range []string{"p/3", "p/1", "p/2", "q/1", "p/4"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "p/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 || list[0].Key != "p/1" || list[3].Key != "p/4" {
		t.Fatalf("unexpected list %+v", list)
	}
	if empty, err := store.List(ctx, "none/"); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, empty)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	s, err := New(context.Background(), Config{Bucket: "bkt", AccessKeyID: "AKIA", SecretAccessKey: "SECRET", Endpoint: "https://minio.local", PathStyle: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Bucket() != "bkt" {
		t.Fatalf("unexpected bucket %s", s.Bucket())
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("plain body must not decode")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc=\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello, got %q %v", b, ok)
	}
}

func TestFakeRejectsUnsupportedMethods(t *testing.T) {
	rt := &FakeS3{objects: map[string]fakeObject{}}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
