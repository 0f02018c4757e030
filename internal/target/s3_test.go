package target

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"musicsync/internal/config"
	"musicsync/internal/logging"
	"musicsync/internal/services"
)

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3RoundTripUnderPrefix(t *testing.T) {
	fake := newFakeS3()
	store := newS3(fake, "music-bucket", "/devices/phone/", logging.NewNop())
	ctx := context.Background()

	if got := store.Describe(); got != "s3://music-bucket/devices/phone" {
		t.Fatalf("Describe = %q", got)
	}

	local := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(local, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := store.Upload(ctx, local, "Music/A.mp3")
	if err != nil || n != 5 {
		t.Fatalf("Upload = %d, %v", n, err)
	}
	if _, ok := fake.objects["devices/phone/Music/A.mp3"]; !ok {
		t.Fatalf("expected prefixed key, have %v", fake.objects)
	}

	ok, err := store.Exists(ctx, "Music/A.mp3")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	ok, err = store.Exists(ctx, "Music/missing.mp3")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}

	dst := filepath.Join(t.TempDir(), "copy.mp3")
	if _, err := store.Download(ctx, "Music/A.mp3", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "audio" {
		t.Fatalf("downloaded %q", got)
	}

	if err := store.Delete(ctx, "Music/A.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("expected object removed, have %v", fake.objects)
	}
}

func TestS3DeleteMissingKeySucceeds(t *testing.T) {
	fake := newFakeS3()
	fake.deleteErr = &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
	store := newS3(fake, "bucket", "", logging.NewNop())
	if err := store.Delete(context.Background(), "Music/A.mp3"); err != nil {
		t.Fatalf("missing key should count as deleted: %v", err)
	}
}

func TestS3FailuresAreTransferErrors(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("connection reset")
	fake.deleteErr = &smithy.GenericAPIError{Code: "AccessDenied"}
	store := newS3(fake, "bucket", "", logging.NewNop())
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upload(ctx, local, "A.mp3"); !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error on upload, got %v", err)
	}
	if err := store.Delete(ctx, "A.mp3"); !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error on delete, got %v", err)
	}
	if _, err := store.Download(ctx, "A.mp3", filepath.Join(t.TempDir(), "x")); !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected transfer error on missing download, got %v", err)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.S3{Region: "us-east-1"}, logging.NewNop())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
