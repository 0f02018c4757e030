package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"

	"musicsync/internal/catalog"
	"musicsync/internal/logging"
	"musicsync/internal/pipeline"
	"musicsync/internal/plan"
	"musicsync/internal/reconcile"
	"musicsync/internal/services"
	"musicsync/internal/target"
	"musicsync/internal/testsupport"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeTranscoder struct {
	mu      sync.Mutex
	fail    map[string]bool
	outputs []string
}

func (f *fakeTranscoder) Transcode(_ context.Context, input, output string) error {
	f.mu.Lock()
	f.outputs = append(f.outputs, output)
	fail := f.fail[filepath.Base(input)]
	f.mu.Unlock()
	if err := os.WriteFile(output, []byte("partial"), 0o644); err != nil {
		return err
	}
	if fail {
		return services.Wrap(services.ErrTranscode, "encoder", "run", input, errors.New("exit status 1"))
	}
	return os.WriteFile(output, []byte("encoded:"+filepath.Base(input)), 0o644)
}

type failingStore struct {
	target.Store
	failOn string
}

func (f failingStore) Upload(ctx context.Context, local, targetPath string) (int64, error) {
	if targetPath == f.failOn {
		return 0, services.Wrap(services.ErrTransfer, "target", "upload", targetPath, errors.New("device removed"))
	}
	return f.Store.Upload(ctx, local, targetPath)
}

type harness struct {
	sourceDir string
	tempDir   string
	store     target.Store
	catalog   *catalog.Store
	fps       *testsupport.StubFingerprints
	enc       *fakeTranscoder
	mapper    plan.PathMapper
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()
	fps := testsupport.NewStubFingerprints()
	fps.Root = filepath.Join(base, "source")
	h := &harness{
		sourceDir: fps.Root,
		tempDir:   filepath.Join(base, "tmp"),
		store:     target.NewDevice(memfs.New(), "/media/player", logging.NewNop()),
		catalog:   testsupport.MustOpenCatalog(t),
		fps:       fps,
		enc:       &fakeTranscoder{fail: map[string]bool{}},
		mapper:    plan.NewPathMapper("Music", "m4a"),
	}
	return h
}

func (h *harness) source(t *testing.T, rel, content string, seed byte) {
	t.Helper()
	testsupport.WriteContent(t, filepath.Join(h.sourceDir, filepath.FromSlash(rel)), content, t0)
	h.fps.Set(rel, testsupport.Fingerprint{ModifiedAt: t0, Hash: testsupport.Hash(seed)})
}

func (h *harness) executor(isolate bool) *pipeline.Executor {
	return pipeline.New(h.store, h.enc, h.catalog, h.fps, pipeline.Options{
		TempDir:         h.tempDir,
		OutputExtension: "m4a",
		Workers:         3,
		IsolateFailures: isolate,
	}, logging.NewNop())
}

func readTarget(t *testing.T, store target.Store, p string) string {
	t.Helper()
	local := filepath.Join(t.TempDir(), "read")
	if _, err := store.Download(context.Background(), p, local); err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	b, err := os.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func assertTempEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be empty, found %d entries", len(entries))
	}
}

func TestExecuteCopiesAndTranscodes(t *testing.T) {
	h := newHarness(t)
	h.source(t, "A.mp3", "plain", 1)
	h.source(t, "Artist/B.flac", "lossless", 2)
	ops := []plan.Operation{
		plan.Copy("A.mp3", false, h.mapper.CopyTargetPath("A.mp3", false)),
		plan.Copy("Artist/B.flac", true, h.mapper.CopyTargetPath("Artist/B.flac", true)),
	}

	result, err := h.executor(false).Execute(context.Background(), ops)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Copied != 2 || result.Transcoded != 1 || result.Deleted != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.BytesUploaded != int64(len("plain")+len("encoded:B.flac")) {
		t.Fatalf("unexpected byte count %d", result.BytesUploaded)
	}
	if got := readTarget(t, h.store, "Music/A.mp3"); got != "plain" {
		t.Fatalf("A.mp3 content %q", got)
	}
	if got := readTarget(t, h.store, "Music/Artist/B.m4a"); got != "encoded:B.flac" {
		t.Fatalf("B.m4a content %q", got)
	}

	rec, err := h.catalog.Lookup(context.Background(), "Artist/B.flac")
	if err != nil || rec == nil {
		t.Fatalf("expected record for B.flac: %v %v", rec, err)
	}
	want := catalog.Record{SourcePath: "Artist/B.flac", ModifiedAt: t0, ContentHash: testsupport.Hash(2), TargetFileName: "B.m4a"}
	if !rec.Equal(want) {
		t.Fatalf("record = %+v, want %+v", rec, want)
	}
	assertTempEmpty(t, h.tempDir)
}

func TestTranscodeFailureLeavesNoRecordAndNoTempFile(t *testing.T) {
	h := newHarness(t)
	h.source(t, "B.flac", "lossless", 2)
	h.enc.fail["B.flac"] = true

	_, err := h.executor(false).Execute(context.Background(), []plan.Operation{
		plan.Copy("B.flac", true, h.mapper.CopyTargetPath("B.flac", true)),
	})
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected transcode error, got %v", err)
	}
	if rec, _ := h.catalog.Lookup(context.Background(), "B.flac"); rec != nil {
		t.Fatalf("expected no record after failed transcode, got %+v", rec)
	}
	if ok, _ := h.store.Exists(context.Background(), "Music/B.m4a"); ok {
		t.Fatal("nothing should reach the target after a failed transcode")
	}
	if len(h.enc.outputs) != 1 {
		t.Fatalf("expected one transcode attempt, got %d", len(h.enc.outputs))
	}
	assertTempEmpty(t, h.tempDir)
}

func TestDeleteRemovesFileThenRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, rec := range []catalog.Record{
		{SourcePath: "A.mp3", ModifiedAt: t0, ContentHash: testsupport.Hash(1), TargetFileName: "A.mp3"},
		{SourcePath: "C.flac", ModifiedAt: t0, ContentHash: testsupport.Hash(3), TargetFileName: "C.m4a"},
	} {
		if _, err := h.catalog.Upsert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	local := filepath.Join(t.TempDir(), "c")
	if err := os.WriteFile(local, []byte("c"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.Upload(ctx, local, "Music/C.m4a"); err != nil {
		t.Fatal(err)
	}

	orphan, _ := h.catalog.Lookup(ctx, "C.flac")
	result, err := h.executor(false).Execute(ctx, []plan.Operation{plan.Delete(*orphan, h.mapper.RecordTargetPath(*orphan))})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("expected one delete, got %+v", result)
	}
	if ok, _ := h.store.Exists(ctx, "Music/C.m4a"); ok {
		t.Fatal("expected transcoded target file to be deleted")
	}
	records, err := h.catalog.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].SourcePath != "A.mp3" {
		t.Fatalf("expected only A.mp3 to remain, got %+v", records)
	}
}

func TestTransferFailureDoesNotWriteCatalog(t *testing.T) {
	h := newHarness(t)
	h.source(t, "A.mp3", "plain", 1)
	h.store = failingStore{Store: h.store, failOn: "Music/A.mp3"}

	_, err := h.executor(false).Execute(context.Background(), []plan.Operation{
		plan.Copy("A.mp3", false, "Music/A.mp3"),
	})
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if count, _ := h.catalog.Count(context.Background()); count != 0 {
		t.Fatalf("expected empty catalog, got %d records", count)
	}
}

func TestIsolatedFailuresContinueAndAggregate(t *testing.T) {
	h := newHarness(t)
	h.source(t, "A.mp3", "plain", 1)
	h.source(t, "B.flac", "lossless", 2)
	h.source(t, "D.ogg", "vorbis", 4)
	h.enc.fail["B.flac"] = true
	h.store = failingStore{Store: h.store, failOn: "Music/D.ogg"}

	ops := []plan.Operation{
		plan.Copy("A.mp3", false, "Music/A.mp3"),
		plan.Copy("B.flac", true, "Music/B.m4a"),
		plan.Copy("D.ogg", false, "Music/D.ogg"),
	}
	result, err := h.executor(true).Execute(context.Background(), ops)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !errors.Is(err, services.ErrTranscode) || !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("aggregate error should carry both failure kinds, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 of 3 operations failed") {
		t.Fatalf("unexpected aggregate message %q", err)
	}
	if result.Copied != 1 || len(result.Failures) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if rec, _ := h.catalog.Lookup(context.Background(), "A.mp3"); rec == nil {
		t.Fatal("successful operation must still be recorded")
	}
	if count, _ := h.catalog.Count(context.Background()); count != 1 {
		t.Fatalf("expected only the successful copy recorded, got %d", count)
	}
	assertTempEmpty(t, h.tempDir)
}

func TestExecutedCopyIsNotReplanned(t *testing.T) {
	h := newHarness(t)
	h.source(t, "P.mp3", "payload", 5)
	rec := reconcile.New(h.catalog, h.fps, h.fps, h.mapper, 2, logging.NewNop())
	ctx := context.Background()

	ops, err := rec.Reconcile(ctx, []string{"P.mp3"})
	if err != nil || len(ops) != 1 {
		t.Fatalf("first Reconcile = %v, %v", ops, err)
	}
	if _, err := h.executor(false).Execute(ctx, ops); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	ops, err = rec.Reconcile(ctx, []string{"P.mp3"})
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected no operations after executing the plan, got %v", ops)
	}
}

func TestOrphanExecutionLeavesOnlyRetainedRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.source(t, "A.mp3", "a", 1)
	for _, r := range []catalog.Record{
		{SourcePath: "A.mp3", ModifiedAt: t0, ContentHash: testsupport.Hash(1), TargetFileName: "A.mp3"},
		{SourcePath: "C.mp3", ModifiedAt: t0, ContentHash: testsupport.Hash(3), TargetFileName: "C.mp3"},
	} {
		if _, err := h.catalog.Upsert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	rec := reconcile.New(h.catalog, h.fps, h.fps, h.mapper, 2, logging.NewNop())
	ops, err := rec.Reconcile(ctx, []string{"A.mp3"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind() != plan.KindDelete || ops[0].SourcePath() != "C.mp3" {
		t.Fatalf("expected single delete of C.mp3, got %v", ops)
	}
	if _, err := h.executor(false).Execute(ctx, ops); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	records, _ := h.catalog.ListAll(ctx)
	if len(records) != 1 || records[0].SourcePath != "A.mp3" {
		t.Fatalf("expected only A.mp3 to remain, got %+v", records)
	}
}

func TestEmptyPlanIsNoop(t *testing.T) {
	h := newHarness(t)
	result, err := h.executor(false).Execute(context.Background(), nil)
	if err != nil || result.Applied() != 0 {
		t.Fatalf("Execute(nil) = %+v, %v", result, err)
	}
}

func (h *harness) onTarget(t *testing.T, targetPath, content string) {
	t.Helper()
	local := filepath.Join(t.TempDir(), "seed")
	if err := os.WriteFile(local, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.Upload(context.Background(), local, targetPath); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) sequential() *pipeline.Executor {
	return pipeline.New(h.store, h.enc, h.catalog, h.fps, pipeline.Options{
		TempDir:         h.tempDir,
		OutputExtension: "m4a",
		Workers:         1,
	}, logging.NewNop())
}

func TestDeleteOfReusedTargetPathKeepsNewCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := catalog.Record{SourcePath: "X.flac", ModifiedAt: t0, ContentHash: testsupport.Hash(7), TargetFileName: "X.m4a"}
	if _, err := h.catalog.Upsert(ctx, old); err != nil {
		t.Fatal(err)
	}
	h.onTarget(t, "Music/X.m4a", "encoded:X.flac")
	h.source(t, "X.m4a", "aac", 8)

	ops := []plan.Operation{
		plan.Copy("X.m4a", false, h.mapper.CopyTargetPath("X.m4a", false)),
		plan.Delete(old, h.mapper.RecordTargetPath(old)),
	}
	if ops[0].TargetPath() != ops[1].TargetPath() {
		t.Fatalf("operations should share a target path: %q vs %q", ops[0].TargetPath(), ops[1].TargetPath())
	}
	result, err := h.sequential().Execute(ctx, ops)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Copied != 1 || result.Deleted != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := readTarget(t, h.store, "Music/X.m4a"); got != "aac" {
		t.Fatalf("target content %q, want the new copy", got)
	}
	records, err := h.catalog.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].SourcePath != "X.m4a" {
		t.Fatalf("expected only X.m4a recorded, got %+v", records)
	}

	rec := reconcile.New(h.catalog, h.fps, h.fps, h.mapper, 2, logging.NewNop())
	ops, err = rec.Reconcile(ctx, []string{"X.m4a"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected a settled target, got %v", ops)
	}
}

func TestCopyUnderNewNameRemovesReplacedFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, catalog.Record{
		SourcePath: "Artist/A.flac", ModifiedAt: t0, ContentHash: testsupport.Hash(1), TargetFileName: "A.m4a",
	}); err != nil {
		t.Fatal(err)
	}
	h.onTarget(t, "Music/Artist/A.m4a", "encoded:A.flac")
	h.onTarget(t, "Music/Artist/B.mp3", "neighbour")
	h.source(t, "Artist/A.flac", "lossless v2", 2)

	result, err := h.executor(false).Execute(ctx, []plan.Operation{
		plan.Copy("Artist/A.flac", false, h.mapper.CopyTargetPath("Artist/A.flac", false)),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Copied != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := readTarget(t, h.store, "Music/Artist/A.flac"); got != "lossless v2" {
		t.Fatalf("A.flac content %q", got)
	}
	if ok, _ := h.store.Exists(ctx, "Music/Artist/A.m4a"); ok {
		t.Fatal("expected the file stored under the old name to be removed")
	}
	if ok, _ := h.store.Exists(ctx, "Music/Artist/B.mp3"); !ok {
		t.Fatal("unrelated file must survive")
	}
	rec, err := h.catalog.Lookup(ctx, "Artist/A.flac")
	if err != nil || rec == nil || rec.TargetFileName != "A.flac" {
		t.Fatalf("record = %+v, %v", rec, err)
	}
}

func TestReplacedFileClaimedByAnotherCopySurvives(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.catalog.Upsert(ctx, catalog.Record{
		SourcePath: "A.flac", ModifiedAt: t0, ContentHash: testsupport.Hash(1), TargetFileName: "A.m4a",
	}); err != nil {
		t.Fatal(err)
	}
	h.onTarget(t, "Music/A.m4a", "encoded:A.flac")
	h.source(t, "A.flac", "lossless v2", 2)
	h.source(t, "A.m4a", "aac", 3)

	_, err := h.sequential().Execute(ctx, []plan.Operation{
		plan.Copy("A.m4a", false, h.mapper.CopyTargetPath("A.m4a", false)),
		plan.Copy("A.flac", false, h.mapper.CopyTargetPath("A.flac", false)),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := readTarget(t, h.store, "Music/A.m4a"); got != "aac" {
		t.Fatalf("A.m4a content %q", got)
	}
	if got := readTarget(t, h.store, "Music/A.flac"); got != "lossless v2" {
		t.Fatalf("A.flac content %q", got)
	}
}
