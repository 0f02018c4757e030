package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/gofrs/flock"

	"musicsync/internal/catalog"
	"musicsync/internal/logging"
	"musicsync/internal/pipeline"
	"musicsync/internal/plan"
	"musicsync/internal/services"
	"musicsync/internal/session"
	"musicsync/internal/target"
	"musicsync/internal/testsupport"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type staticLister []string

func (s staticLister) List(context.Context, string) ([]string, error) {
	return append([]string(nil), s...), nil
}

type copyTranscoder struct{}

func (copyTranscoder) Transcode(_ context.Context, input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, append([]byte("aac:"), data...), 0o644)
}

type uploadFailure struct {
	target.Store
	path string
}

func (u uploadFailure) Upload(ctx context.Context, local, targetPath string) (int64, error) {
	if targetPath == u.path {
		return 0, services.Wrap(services.ErrTransfer, "target", "upload", targetPath, errors.New("i/o error"))
	}
	return u.Store.Upload(ctx, local, targetPath)
}

type env struct {
	t        *testing.T
	base     string
	fps      *testsupport.StubFingerprints
	device   target.Store
	sources  staticLister
	confirms []session.Decision
	asked    int
	previews int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	fps := testsupport.NewStubFingerprints()
	fps.Root = filepath.Join(base, "source")
	return &env{
		t:      t,
		base:   base,
		fps:    fps,
		device: target.NewDevice(memfs.New(), "/media/player", logging.NewNop()),
	}
}

func (e *env) addSource(rel, content string, seed byte, bitrate int64) {
	e.t.Helper()
	testsupport.WriteContent(e.t, filepath.Join(e.fps.Root, filepath.FromSlash(rel)), content, t0)
	e.fps.Set(rel, testsupport.Fingerprint{ModifiedAt: t0, Hash: testsupport.Hash(seed), Bitrate: bitrate})
	e.sources = append(e.sources, rel)
}

func (e *env) workDir() string { return filepath.Join(e.base, "work") }

func (e *env) controller(store target.Store, mutate func(*session.Options)) *session.Controller {
	opts := session.Options{
		SourceDir:       e.fps.Root,
		WorkDir:         e.workDir(),
		TempDir:         filepath.Join(e.base, "tmp"),
		CatalogName:     "synchronized.sqlite",
		OutputExtension: "m4a",
		Workers:         2,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return session.New(session.Dependencies{
		Lister:       e.sources,
		Fingerprints: e.fps,
		Decider:      e.fps,
		Transcoder:   copyTranscoder{},
		Store:        store,
		Mapper:       plan.NewPathMapper("Music", "m4a"),
		Confirm: func(context.Context, plan.Summary, []plan.Operation) (session.Decision, error) {
			e.asked++
			if len(e.confirms) == 0 {
				return session.DecisionProceed, nil
			}
			d := e.confirms[0]
			e.confirms = e.confirms[1:]
			return d, nil
		},
		Preview: func([]plan.Operation) { e.previews++ },
	}, opts, logging.NewNop())
}

func (e *env) remoteRecords(store target.Store) []catalog.Record {
	e.t.Helper()
	local := filepath.Join(e.t.TempDir(), "remote.sqlite")
	if _, err := store.Download(context.Background(), "synchronized.sqlite", local); err != nil {
		e.t.Fatalf("download remote catalog: %v", err)
	}
	cat, err := catalog.Open(context.Background(), local, logging.NewNop())
	if err != nil {
		e.t.Fatalf("open remote catalog: %v", err)
	}
	defer cat.Close()
	records, err := cat.ListAll(context.Background())
	if err != nil {
		e.t.Fatalf("list remote catalog: %v", err)
	}
	return records
}

func TestFirstRunCopiesAndUploadsCatalog(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	e.addSource("B.flac", "b", 2, 900_000)

	report, err := e.controller(e.device, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.CatalogRestored {
		t.Fatal("fresh target should not restore a catalog")
	}
	if !report.Executed || !report.Uploaded {
		t.Fatalf("expected executed and uploaded run, got %+v", report)
	}
	if report.Summary.Copies != 2 || report.Summary.Transcodes != 1 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	if e.asked != 1 {
		t.Fatalf("expected one confirmation, got %d", e.asked)
	}
	if ok, _ := e.device.Exists(context.Background(), "Music/B.m4a"); !ok {
		t.Fatal("expected transcoded file on target")
	}
	records := e.remoteRecords(e.device)
	if len(records) != 2 || records[1].TargetFileName != "B.m4a" {
		t.Fatalf("unexpected remote catalog %+v", records)
	}
}

func TestSecondRunRestoresCatalogAndSkipsGate(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	if _, err := e.controller(e.device, nil).Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	e.asked = 0

	report, err := e.controller(e.device, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !report.CatalogRestored {
		t.Fatal("expected catalog restored from target")
	}
	if len(report.Operations) != 0 || e.asked != 0 {
		t.Fatalf("expected no operations and no prompt, got %d ops, %d prompts", len(report.Operations), e.asked)
	}
	if !report.Uploaded {
		t.Fatal("clean run must upload the catalog")
	}
	if _, err := os.Stat(filepath.Join(e.workDir(), "synchronized.bak")); err != nil {
		t.Fatalf("expected previous snapshot rotated to .bak: %v", err)
	}
}

func TestAbortStillUploadsCatalog(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	e.confirms = []session.Decision{session.DecisionAbort}

	report, err := e.controller(e.device, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Executed {
		t.Fatal("aborted run must not execute")
	}
	if !report.Uploaded {
		t.Fatal("aborted run is a clean end and uploads the catalog")
	}
	if ok, _ := e.device.Exists(context.Background(), "Music/A.mp3"); ok {
		t.Fatal("no file should be copied after abort")
	}
	if records := e.remoteRecords(e.device); len(records) != 0 {
		t.Fatalf("expected empty remote catalog, got %+v", records)
	}
}

func TestPreviewLoopsBackToConfirmation(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	e.confirms = []session.Decision{session.DecisionPreview, session.DecisionPreview, session.DecisionProceed}

	report, err := e.controller(e.device, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.asked != 3 || e.previews != 2 {
		t.Fatalf("expected 3 prompts and 2 previews, got %d and %d", e.asked, e.previews)
	}
	if report.Decision != session.DecisionProceed || report.Result.Copied != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestFatalTransferErrorSkipsUpload(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	store := uploadFailure{Store: e.device, path: "Music/A.mp3"}

	report, err := e.controller(store, nil).Run(context.Background())
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if report.Uploaded {
		t.Fatal("catalog must not be uploaded after a fatal error")
	}
	if ok, _ := e.device.Exists(context.Background(), "synchronized.sqlite"); ok {
		t.Fatal("target catalog should be untouched")
	}
}

func TestIsolatedFailuresUploadThenReport(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	e.addSource("C.mp3", "c", 3, 128_000)
	store := uploadFailure{Store: e.device, path: "Music/C.mp3"}

	report, err := e.controller(store, func(o *session.Options) { o.IsolateFailures = true }).Run(context.Background())
	var batch *pipeline.BatchError
	if !errors.As(err, &batch) || len(batch.Failures) != 1 {
		t.Fatalf("expected batch error with one failure, got %v", err)
	}
	if !report.Uploaded {
		t.Fatal("isolated failures still upload the catalog")
	}
	records := e.remoteRecords(e.device)
	if len(records) != 1 || records[0].SourcePath != "A.mp3" {
		t.Fatalf("expected only A.mp3 recorded remotely, got %+v", records)
	}
}

func TestDryRunPreviewsWithoutTouchingTarget(t *testing.T) {
	e := newEnv(t)
	e.addSource("A.mp3", "a", 1, 128_000)
	if err := os.MkdirAll(e.workDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.workDir(), "synchronized.sqlite"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := e.controller(e.device, func(o *session.Options) { o.DryRun = true }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.previews != 1 || e.asked != 0 {
		t.Fatalf("dry run previews once without prompting, got %d previews %d prompts", e.previews, e.asked)
	}
	if report.Executed || report.Uploaded {
		t.Fatalf("dry run must not execute or upload: %+v", report)
	}
	if ok, _ := e.device.Exists(context.Background(), "synchronized.sqlite"); ok {
		t.Fatal("dry run must not upload the catalog")
	}
	backup, err := os.ReadFile(filepath.Join(e.workDir(), "synchronized.bak"))
	if err != nil || string(backup) != "stale" {
		t.Fatalf("expected local snapshot rotated, got %q (%v)", backup, err)
	}
}

func TestConcurrentRunIsRejected(t *testing.T) {
	e := newEnv(t)
	ctrl := e.controller(e.device, nil)
	if err := os.MkdirAll(e.workDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(ctrl.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("pre-lock: %v %v", ok, err)
	}
	defer held.Unlock()

	if _, err := ctrl.Run(context.Background()); !errors.Is(err, session.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
