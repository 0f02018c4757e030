package target_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"musicsync/internal/logging"
	"musicsync/internal/services"
	"musicsync/internal/target"
)

func writeLocal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write local: %v", err)
	}
	return path
}

func TestDeviceUploadCreatesParentsAndReplaces(t *testing.T) {
	fs := memfs.New()
	dev := target.NewDevice(fs, "/media/player", logging.NewNop())
	ctx := context.Background()

	if err := util.WriteFile(fs, "Music/Artist/A.mp3", []byte("old content"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := dev.Upload(ctx, writeLocal(t, "new"), "Music/Artist/A.mp3")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes written, got %d", n)
	}
	got, err := util.ReadFile(fs, "Music/Artist/A.mp3")
	if err != nil || string(got) != "new" {
		t.Fatalf("unexpected content %q (%v)", got, err)
	}

	if _, err := dev.Upload(ctx, writeLocal(t, "deep"), "/Music/New/Album/B.m4a"); err != nil {
		t.Fatalf("Upload to new directory: %v", err)
	}
	if ok, err := dev.Exists(ctx, "Music/New/Album/B.m4a"); err != nil || !ok {
		t.Fatalf("expected uploaded file to exist: %v %v", ok, err)
	}

	entries, err := fs.ReadDir("Music/Artist")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestDeviceUploadMissingSourceIsTransferError(t *testing.T) {
	dev := target.NewDevice(memfs.New(), "/media/player", logging.NewNop())
	_, err := dev.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), "Music/A.mp3")
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
}

func TestDeviceDeleteMissingSucceedsAndPrunes(t *testing.T) {
	fs := memfs.New()
	dev := target.NewDevice(fs, "/media/player", logging.NewNop())
	ctx := context.Background()

	if err := dev.Delete(ctx, "Music/never.mp3"); err != nil {
		t.Fatalf("delete of missing file should succeed: %v", err)
	}
	if err := util.WriteFile(fs, "Music/Artist/Album/C.mp3", []byte("c"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := dev.Delete(ctx, "Music/Artist/Album/C.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := dev.Exists(ctx, "Music/Artist/Album/C.mp3"); ok {
		t.Fatal("expected file to be gone")
	}
	if _, err := fs.Stat("Music/Artist"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected empty artist directory to be pruned, stat err=%v", err)
	}
	if _, err := fs.Stat("Music"); err != nil {
		t.Fatalf("top-level music directory must be kept: %v", err)
	}
}

func TestDeviceDownloadWritesLocalFile(t *testing.T) {
	fs := memfs.New()
	dev := target.NewDevice(fs, "/media/player", logging.NewNop())
	if err := util.WriteFile(fs, "synchronized.sqlite", []byte("snapshot"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	local := filepath.Join(t.TempDir(), "work", "synchronized.sqlite")
	if _, err := dev.Download(context.Background(), "synchronized.sqlite", local); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(local)
	if err != nil || string(got) != "snapshot" {
		t.Fatalf("unexpected local content %q (%v)", got, err)
	}

	_, err = dev.Download(context.Background(), "missing.sqlite", local)
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error for missing file, got %v", err)
	}
}

func TestOpenDeviceRequiresDirectory(t *testing.T) {
	_, err := target.OpenDevice(filepath.Join(t.TempDir(), "absent"), logging.NewNop())
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	dev, err := target.OpenDevice(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	if _, err := dev.Upload(context.Background(), writeLocal(t, "x"), "Music/A.mp3"); err != nil {
		t.Fatalf("Upload on osfs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dev.Root(), "Music", "A.mp3")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
}
