package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cargohold/internal/blob"
	blobmemory "cargohold/internal/infra/blob/memory"
	"cargohold/internal/infra/graph/memory"
	"cargohold/internal/lock"
	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewInMemoryService(opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func newArtifact(t *testing.T, storage, repo string, c domain.ArtifactCoordinates) *domain.Artifact {
	t.Helper()
	a, err := domain.NewArtifact(storage, repo, c)
	if err != nil {
		t.Fatalf("new artifact: %v", err)
	}
	return a
}

func rawArtifact(t *testing.T, storage, repo, path string) *domain.Artifact {
	t.Helper()
	return newArtifact(t, storage, repo, domain.NewRawCoordinates(path))
}

func mustSave(t *testing.T, svc *Service, node domain.HierarchyNode) *domain.Artifact {
	t.Helper()
	saved, err := svc.SaveArtifact(context.Background(), node)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return domain.ArtifactOf(saved)
}

func countVertices(svc *Service, label string) int {
	var n int
	_ = svc.Store().View(context.Background(), func(r graph.Reader) error {
		n = len(r.VerticesByLabel(label))
		return nil
	})
	return n
}

func TestSaveAndFindArtifact(t *testing.T) {
	clock := newClock()
	svc := newTestService(t, WithClock(clock.now))
	in := rawArtifact(t, "storage0", "releases", "docs/readme.txt")
	in.SizeInBytes = 12
	in.Tags = []*domain.ArtifactTag{domain.NewArtifactTag("latest")}
	saved := mustSave(t, svc, in)
	if !saved.Created.Equal(clock.t) || !saved.LastUpdated.Equal(clock.t) {
		t.Fatalf("unexpected timestamps %v %v", saved.Created, saved.LastUpdated)
	}

	found, err := svc.FindArtifact(context.Background(), "storage0", "releases", "/docs/readme.txt")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got := domain.ArtifactOf(found)
	if got.UUID != in.UUID || got.Path() != "docs/readme.txt" || got.SizeInBytes != 12 {
		t.Fatalf("unexpected artifact %+v", got)
	}
	if diff := cmp.Diff([]string{"latest"}, got.TagNames()); diff != "" {
		t.Fatalf("tags mismatch:\n%s", diff)
	}
	byUUID, err := svc.FindArtifactByUUID(context.Background(), in.UUID)
	if err != nil || domain.ArtifactOf(byUUID).UUID != in.UUID {
		t.Fatalf("find by uuid: %v %v", byUUID, err)
	}
}

func TestCreatedIsKeptAcrossSaves(t *testing.T) {
	clock := newClock()
	svc := newTestService(t, WithClock(clock.now))
	first := mustSave(t, svc, rawArtifact(t, "s", "r", "a.bin"))
	clock.advance(time.Hour)

	again := rawArtifact(t, "s", "r", "a.bin")
	again.DownloadCount = 3
	second := mustSave(t, svc, again)
	if !second.Created.Equal(first.Created) {
		t.Fatalf("created changed from %v to %v", first.Created, second.Created)
	}
	if !second.LastUpdated.Equal(clock.t) {
		t.Fatalf("expected last updated %v, got %v", clock.t, second.LastUpdated)
	}
	if second.DownloadCount != 3 {
		t.Fatalf("expected download count 3, got %d", second.DownloadCount)
	}
	if n := countVertices(svc, domain.LabelArtifact); n != 1 {
		t.Fatalf("expected one artifact vertex, got %d", n)
	}
}

func TestFindMissingArtifact(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.FindArtifact(context.Background(), "s", "r", "nope")
	var nf domain.NotFoundError
	if !errors.Is(err, domain.ErrNotFound) || !errors.As(err, &nf) || nf.ID != "s/r/nope" {
		t.Fatalf("expected not found for s/r/nope, got %v", err)
	}
}

func TestSaveRejectsChainWithoutArtifact(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.SaveArtifact(context.Background(), nil); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	orphan := &domain.RemoteArtifact{Base: domain.Base{UUID: "x"}}
	if _, err := svc.SaveArtifact(context.Background(), orphan); !errors.Is(err, domain.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch, got %v", err)
	}
}

func TestSaveRemoteArtifactChain(t *testing.T) {
	svc := newTestService(t)
	a := rawArtifact(t, "s", "proxy", "lib/x.jar")
	domain.NewRemoteArtifact(a, true)
	mustSave(t, svc, a)
	found, err := svc.FindArtifactByUUID(context.Background(), a.UUID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	remote, ok := found.(*domain.RemoteArtifact)
	if !ok || !remote.Cached {
		t.Fatalf("expected cached remote level, got %#v", found)
	}
	if remote.Artifact() == nil || remote.Artifact().RepositoryID != "proxy" {
		t.Fatalf("remote level lost its artifact: %#v", remote.Artifact())
	}
}

func TestSaveTimesOutOnLockedPath(t *testing.T) {
	locks := lock.New(30 * time.Millisecond)
	svc := newTestService(t, WithLocks(locks))
	a := rawArtifact(t, "s", "r", "busy.txt")
	release, err := locks.Lock(context.Background(), blob.ArtifactKey("s", "r", "busy.txt"))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer release()
	if _, err := svc.SaveArtifact(context.Background(), a); !errors.Is(err, domain.ErrLockContention) {
		t.Fatalf("expected ErrLockContention, got %v", err)
	}
	if n := countVertices(svc, domain.LabelArtifact); n != 0 {
		t.Fatalf("nothing should be written, found %d artifacts", n)
	}
}

func TestDeleteKeepsSharedCoordinates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	left := mustSave(t, svc, rawArtifact(t, "s", "releases", "shared/file.txt"))
	right := mustSave(t, svc, rawArtifact(t, "s", "snapshots", "shared/file.txt"))
	if n := countVertices(svc, domain.LabelRawArtifactCoordinates); n != 1 {
		t.Fatalf("expected shared coordinates vertex, got %d", n)
	}

	if err := svc.DeleteArtifact(ctx, left.UUID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.FindArtifactByUUID(ctx, left.UUID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted artifact gone, got %v", err)
	}
	survivor, err := svc.FindArtifactByUUID(ctx, right.UUID)
	if err != nil {
		t.Fatalf("find survivor: %v", err)
	}
	if domain.ArtifactOf(survivor).Path() != "shared/file.txt" {
		t.Fatalf("survivor lost coordinates: %+v", domain.ArtifactOf(survivor))
	}

	if err := svc.DeleteArtifact(ctx, right.UUID); err != nil {
		t.Fatalf("delete survivor: %v", err)
	}
	if n := countVertices(svc, domain.LabelRawArtifactCoordinates) + countVertices(svc, domain.LabelGenericArtifactCoordinates); n != 0 {
		t.Fatalf("coordinates should be removed with the last artifact, %d left", n)
	}
	if err := svc.DeleteArtifact(ctx, right.UUID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteKeepsTags(t *testing.T) {
	svc := newTestService(t)
	a := rawArtifact(t, "s", "r", "t.txt")
	a.Tags = []*domain.ArtifactTag{domain.NewArtifactTag("release")}
	saved := mustSave(t, svc, a)
	if err := svc.DeleteArtifact(context.Background(), saved.UUID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tags, err := svc.ListTags(context.Background())
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "release" {
		t.Fatalf("expected shared tag to survive, got %+v", tags)
	}
}

func TestRecordDownload(t *testing.T) {
	clock := newClock()
	svc := newTestService(t, WithClock(clock.now))
	saved := mustSave(t, svc, rawArtifact(t, "s", "r", "d.txt"))
	clock.advance(time.Minute)
	for range 2 {
		if _, err := svc.RecordDownload(context.Background(), saved.UUID); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	found, _ := svc.FindArtifactByUUID(context.Background(), saved.UUID)
	got := domain.ArtifactOf(found)
	if got.DownloadCount != 2 || !got.LastUsed.Equal(clock.t) {
		t.Fatalf("unexpected download stats %d %v", got.DownloadCount, got.LastUsed)
	}
	if !got.Created.Equal(saved.Created) {
		t.Fatalf("created must not move: %v vs %v", got.Created, saved.Created)
	}
}

func TestListings(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	maven := newArtifact(t, "s", "releases", domain.NewMavenCoordinates("org.cargo", "core", "1.0", "", "jar"))
	maven.Tags = []*domain.ArtifactTag{domain.NewArtifactTag("stable"), domain.NewArtifactTag("latest")}
	mustSave(t, svc, maven)
	mustSave(t, svc, rawArtifact(t, "s", "raw", "b.txt"))
	mustSave(t, svc, rawArtifact(t, "s", "raw", "a.txt"))

	all, err := svc.ListArtifacts(ctx, "", "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
	raw, err := svc.ListArtifacts(ctx, "s", "raw")
	if err != nil {
		t.Fatalf("list raw: %v", err)
	}
	var paths []string
	for _, n := range raw {
		paths = append(paths, domain.ArtifactOf(n).Path())
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt"}, paths); diff != "" {
		t.Fatalf("raw paths mismatch:\n%s", diff)
	}

	coords, err := svc.ListCoordinates(ctx)
	if err != nil {
		t.Fatalf("coordinates: %v", err)
	}
	layouts := map[domain.Layout]int{}
	for _, c := range coords {
		layouts[c.Layout()]++
	}
	if diff := cmp.Diff(map[domain.Layout]int{domain.LayoutMaven: 1, domain.LayoutRaw: 2}, layouts); diff != "" {
		t.Fatalf("layouts mismatch:\n%s", diff)
	}

	tags, err := svc.ListTags(ctx)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "latest" || tags[1].Name != "stable" {
		t.Fatalf("unexpected tags %+v", tags)
	}
}

func newContentService(t *testing.T, opts ...Option) (*Service, blob.Store) {
	t.Helper()
	blobs := blobmemory.New()
	return newTestService(t, append([]Option{WithContentStore(NewContentStore(blobs))}, opts...)...), blobs
}

func TestDeployFetchAndDelete(t *testing.T) {
	clock := newClock()
	svc, blobs := newContentService(t, WithClock(clock.now))
	ctx := context.Background()
	coords := domain.NewRawCoordinates("bin/tool.sh")
	node, err := svc.Deploy(ctx, DeployRequest{
		StorageID: "s", RepositoryID: "r", Coordinates: coords,
		Content: bytes.NewReader([]byte("#!/bin/sh\n")), ContentType: "text/x-sh", Tags: []string{"latest"},
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	a := domain.ArtifactOf(node)
	if !a.ArtifactFileExists || a.SizeInBytes != 10 || len(a.Checksums) != 3 {
		t.Fatalf("unexpected deployed artifact %+v", a)
	}
	if diff := cmp.Diff([]string{"tool.sh"}, a.Filenames); diff != "" {
		t.Fatalf("filenames mismatch:\n%s", diff)
	}

	_, err = svc.Deploy(ctx, DeployRequest{StorageID: "s", RepositoryID: "r", Coordinates: domain.NewRawCoordinates("bin/tool.sh"),
		Content: bytes.NewReader([]byte("second"))})
	if !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists on redeploy, got %v", err)
	}

	clock.advance(time.Hour)
	node, err = svc.Deploy(ctx, DeployRequest{StorageID: "s", RepositoryID: "r", Coordinates: domain.NewRawCoordinates("bin/tool.sh"),
		Content: bytes.NewReader([]byte("#!/bin/bash\n")), Tags: []string{"stable"}, Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite deploy: %v", err)
	}
	a = domain.ArtifactOf(node)
	if a.SizeInBytes != 12 || a.Created.Equal(clock.t) {
		t.Fatalf("overwrite should update size and keep created: %+v", a)
	}
	if diff := cmp.Diff([]string{"latest", "stable"}, a.TagNames()); diff != "" {
		t.Fatalf("tags mismatch:\n%s", diff)
	}

	fetched, rc, err := svc.Fetch(ctx, "s", "r", "bin/tool.sh")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "#!/bin/bash\n" || domain.ArtifactOf(fetched).DownloadCount != 1 {
		t.Fatalf("unexpected fetch %q %+v", body, domain.ArtifactOf(fetched))
	}

	if err := svc.DeleteArtifact(ctx, a.UUID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := blobs.Head(ctx, blob.ArtifactKey("s", "r", "bin/tool.sh")); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected content removed, got %v", err)
	}
}

func TestDeployWithoutContentStore(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Deploy(context.Background(), DeployRequest{StorageID: "s", RepositoryID: "r",
		Coordinates: domain.NewRawCoordinates("x"), Content: bytes.NewReader(nil)})
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, _, err := svc.Fetch(context.Background(), "s", "r", "x"); !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported from fetch, got %v", err)
	}
}

func TestDeployRejectsInvalidArtifact(t *testing.T) {
	svc, blobs := newContentService(t)
	_, err := svc.Deploy(context.Background(), DeployRequest{RepositoryID: "r",
		Coordinates: domain.NewRawCoordinates("x"), Content: bytes.NewReader([]byte("x"))})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if list, _ := blobs.List(context.Background(), ""); len(list) != 0 {
		t.Fatalf("nothing should be stored, got %+v", list)
	}
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestEditedCoordinatesDoNotOverwriteSibling(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	coords := func() domain.ArtifactCoordinates {
		return domain.NewMavenCoordinates("org.ex", "lib", "1.0", "", "jar")
	}
	first := mustSave(t, svc, newArtifact(t, "s", "r1", coords()))
	second := mustSave(t, svc, newArtifact(t, "s", "r2", coords()))

	reloaded, err := svc.FindArtifactByUUID(ctx, first.UUID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	domain.ArtifactOf(reloaded).ArtifactCoordinates.Generic().Version = "2.0"
	if _, err := svc.SaveArtifact(ctx, reloaded); !errors.Is(err, domain.ErrIdentityConflict) {
		t.Fatalf("expected ErrIdentityConflict, got %v", err)
	}

	sibling, err := svc.FindArtifactByUUID(ctx, second.UUID)
	if err != nil {
		t.Fatalf("find sibling: %v", err)
	}
	if got := domain.ArtifactOf(sibling).Path(); got != "org/ex/lib/1.0/lib-1.0.jar" {
		t.Fatalf("sibling path changed to %q", got)
	}
	if n := countVertices(svc, domain.LabelMavenArtifactCoordinates); n != 1 {
		t.Fatalf("expected one shared coordinates vertex, got %d", n)
	}
}

func TestStoredChainWithoutArtifactLevel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	err := svc.Store().RunInTransaction(ctx, func(tx graph.Tx) error {
		_, err := tx.UpsertVertex(domain.LabelRemoteArtifact, "u-1", nil)
		return err
	})
	if err != nil {
		t.Fatalf("seed remote artifact: %v", err)
	}
	if _, err := svc.FindArtifactByUUID(ctx, "u-1"); !errors.Is(err, domain.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch from find, got %v", err)
	}
	if err := svc.DeleteArtifact(ctx, "u-1"); !errors.Is(err, domain.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch from delete, got %v", err)
	}
	if _, err := svc.RecordDownload(ctx, "u-1"); !errors.Is(err, domain.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch from record download, got %v", err)
	}
	if _, err := svc.AddArtifactToGroup(ctx, "core", "u-1"); !errors.Is(err, domain.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch from group add, got %v", err)
	}
	if n := countVertices(svc, domain.LabelRemoteArtifact); n != 1 {
		t.Fatalf("remote artifact must be left in place, got %d", n)
	}
}

// failingStore rejects writes once failWrites is set.
type failingStore struct {
	graph.Store
	failWrites bool
}

var errWriteRejected = errors.New("write rejected")

func (s *failingStore) RunInTransaction(ctx context.Context, fn func(graph.Tx) error) error {
	if s.failWrites {
		return errWriteRejected
	}
	return s.Store.RunInTransaction(ctx, fn)
}

func readBlob(t *testing.T, blobs blob.Store, key string) string {
	t.Helper()
	_, rc, err := blobs.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return string(body)
}

func TestFailedOverwriteRestoresContent(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(memory.WithConstraints(DefaultConstraints()...))}
	blobs := blobmemory.New()
	svc, err := NewService(store, WithContentStore(NewContentStore(blobs)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	key := blob.ArtifactKey("s", "r", "conf/app.yaml")
	if _, err := svc.Deploy(ctx, DeployRequest{StorageID: "s", RepositoryID: "r",
		Coordinates: domain.NewRawCoordinates("conf/app.yaml"), Content: bytes.NewReader([]byte("v1")), ContentType: "text/yaml"}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	store.failWrites = true
	_, err = svc.Deploy(ctx, DeployRequest{StorageID: "s", RepositoryID: "r",
		Coordinates: domain.NewRawCoordinates("conf/app.yaml"), Content: bytes.NewReader([]byte("v2")), Overwrite: true})
	if !errors.Is(err, errWriteRejected) {
		t.Fatalf("expected rejected write, got %v", err)
	}
	if got := readBlob(t, blobs, key); got != "v1" {
		t.Fatalf("expected previous content restored, got %q", got)
	}
	info, err := blobs.Head(ctx, key)
	if err != nil || info.ContentType != "text/yaml" {
		t.Fatalf("expected restored content type, got %+v %v", info, err)
	}

	_, err = svc.Deploy(ctx, DeployRequest{StorageID: "s", RepositoryID: "r",
		Coordinates: domain.NewRawCoordinates("conf/new.yaml"), Content: bytes.NewReader([]byte("x"))})
	if !errors.Is(err, errWriteRejected) {
		t.Fatalf("expected rejected write, got %v", err)
	}
	if _, err := blobs.Head(ctx, blob.ArtifactKey("s", "r", "conf/new.yaml")); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected new content removed, got %v", err)
	}

	store.failWrites = false
	stored, err := svc.FindArtifact(ctx, "s", "r", "conf/app.yaml")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if a := domain.ArtifactOf(stored); a.SizeInBytes != 2 || a.Checksums[ChecksumSHA1] == "" {
		t.Fatalf("stored artifact should describe the first upload: %+v", a)
	}
}
