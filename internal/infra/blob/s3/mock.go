package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags are md5 digests
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMock returns a Store backed by an in-memory fake S3 endpoint. It serves
// the HEAD/GET/PUT/DELETE object calls and ListObjectsV2 with pages of
// pageSize keys (unpaged when pageSize <= 0).
func NewMock(pageSize int) *Store {
	rt := &FakeS3{objects: make(map[string]fakeObject), pageSize: pageSize}
	s, err := New(context.Background(), Config{
		Bucket:          "mock-bucket",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *s3.Options) { o.HTTPClient = &http.Client{Transport: rt} })
	if err != nil {
		panic(err)
	}
	return s
}

// FakeS3 is an http.RoundTripper emulating a single S3 bucket.
type FakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

func (o fakeObject) header() http.Header {
	sum := md5.Sum(o.body) //nolint:gosec
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Content-Type":   {o.contentType},
		"Etag":           {`"` + hex.EncodeToString(sum[:]) + `"`},
		"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
	}
	for k, v := range o.metadata {
		h[k] = v
	}
	return h
}

// RoundTrip implements http.RoundTripper.
func (f *FakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		if obj, ok := f.objects[key]; ok {
			return response(http.StatusOK, nil, obj.header()), nil
		}
		return response(http.StatusNotFound, nil, nil), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		md := http.Header{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				md[k] = v
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return response(http.StatusOK, nil, http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodGet:
		if obj, ok := f.objects[key]; ok {
			return response(http.StatusOK, obj.body, obj.header()), nil
		}
		return response(http.StatusNotFound, []byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`),
			http.Header{"Content-Type": {"application/xml"}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (f *FakeS3) list(req *http.Request) *http.Response {
	q := req.URL.Query()
	prefix := q.Get("prefix")
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if tok := q.Get("continuation-token"); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	if start > len(keys) {
		start = len(keys)
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked unwraps a single-chunk aws-chunked payload:
// <hex>\r\n<body>\r\n0\r\n[trailers].
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	header := parts[0]
	if i := strings.IndexByte(header, ';'); i >= 0 {
		header = header[:i]
	}
	n, err := strconv.ParseInt(header, 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}
