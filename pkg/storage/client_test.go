package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dwarf-astro/dwarfctl/pkg/security"
)

// memS3 is an in-memory bucket. Listing returns one key per page to exercise
// pagination.
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (m *memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[*in.Key] = data
	m.meta[*in.Key] = in.Metadata
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.objects[*in.Key]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	_, ok := m.objects[*in.Key]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{}
	if start < len(keys) {
		out.Contents = []types.Object{{Key: aws.String(keys[start])}}
	}
	if start+1 < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[start+1])
	}
	return out, nil
}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		prefix, device string
		seq            int
		want           string
	}{
		{"sessions", "Dwarf II", 3, "sessions/dwarf-ii/2024-03-01/000003.jsonl"},
		{"", "DWARF 3", 12, "dwarf-3/2024-03-01/000012.jsonl"},
		{"logs", "", 1, "logs/unknown/2024-03-01/000001.jsonl"},
	}
	for _, tt := range tests {
		if got := ArchiveKey(tt.prefix, tt.device, tt.seq, at); got != tt.want {
			t.Errorf("ArchiveKey(%q, %q, %d) = %q, want %q", tt.prefix, tt.device, tt.seq, got, tt.want)
		}
	}
}

func TestUploadDownload(t *testing.T) {
	mem := newMemS3()
	c := NewWithAPI(mem, "archives")
	ctx := context.Background()

	body := "{\"id\":1}\n{\"id\":2}\n"
	res, err := c.Upload(ctx, "sessions/a.jsonl", strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to upload: %v", err)
	}
	sum := sha256.Sum256([]byte(body))
	want := hex.EncodeToString(sum[:])
	if res.SHA256 != want || res.Size != int64(len(body)) {
		t.Errorf("upload result = %+v", res)
	}
	if mem.meta["sessions/a.jsonl"]["sha256"] != want {
		t.Errorf("checksum metadata not stored")
	}

	local := filepath.Join(t.TempDir(), "a.jsonl")
	dl, err := c.Download(ctx, "sessions/a.jsonl", local)
	if err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	if dl.SHA256 != want {
		t.Errorf("download checksum = %s, want %s", dl.SHA256, want)
	}
	got, _ := os.ReadFile(local)
	if string(got) != body {
		t.Errorf("downloaded %q", got)
	}

	if _, err := c.Download(ctx, "missing", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Errorf("expected an error for a missing key")
	}
}

func TestDownload_Validator(t *testing.T) {
	mem := newMemS3()
	c := NewWithAPI(mem, "archives").WithValidator(security.NewValidator(16))
	ctx := context.Background()

	mem.objects["ok.jsonl"] = []byte("{\"id\":1}\n")
	mem.objects["big.jsonl"] = []byte(strings.Repeat("x", 17))
	mem.objects["dump.tar"] = []byte("x")

	dir := t.TempDir()
	if _, err := c.Download(ctx, "ok.jsonl", filepath.Join(dir, "ok.jsonl")); err != nil {
		t.Fatalf("failed to download small archive: %v", err)
	}

	big := filepath.Join(dir, "big.jsonl")
	if _, err := c.Download(ctx, "big.jsonl", big); !errors.Is(err, security.ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
	if _, err := os.Stat(big); !os.IsNotExist(err) {
		t.Errorf("partial download left on disk: %v", err)
	}

	if _, err := c.Download(ctx, "dump.tar", filepath.Join(dir, "dump.tar")); err == nil {
		t.Errorf("expected an error for a non-archive key")
	}
}

func TestListObjectsAndExists(t *testing.T) {
	mem := newMemS3()
	c := NewWithAPI(mem, "archives")
	ctx := context.Background()

	for _, k := range []string{"sessions/b.jsonl", "sessions/a.jsonl", "other/c.jsonl"} {
		if _, err := c.Upload(ctx, k, strings.NewReader("x")); err != nil {
			t.Fatalf("failed to upload %s: %v", k, err)
		}
	}

	keys, err := c.ListObjects(ctx, "sessions/")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "sessions/a.jsonl" || keys[1] != "sessions/b.jsonl" {
		t.Errorf("keys = %v", keys)
	}

	if ok, err := c.Exists(ctx, "other/c.jsonl"); err != nil || !ok {
		t.Errorf("Exists(other/c.jsonl) = %v, %v", ok, err)
	}
	if ok, err := c.Exists(ctx, "nope"); err != nil || ok {
		t.Errorf("Exists(nope) = %v, %v", ok, err)
	}
}
