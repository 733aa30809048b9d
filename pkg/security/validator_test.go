package security

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	v := NewValidator(1024)

	tests := []struct {
		key       string
		shouldErr bool
	}{
		{"archives/dwarf-ii/2024-03-01/000001.jsonl", false},
		{"000001.jsonl", false},
		{"a/../000001.jsonl", false},
		{"", true},
		{"/etc/000001.jsonl", true},
		{"../000001.jsonl", true},
		{"a/../../000001.jsonl", true},
		{"archives/dump.tar", true},
	}

	for _, tt := range tests {
		err := v.ValidateKey(tt.key)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for key: %q", tt.key)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for key %q: %v", tt.key, err)
		}
	}
}

func TestValidateFileSize(t *testing.T) {
	v := NewValidator(100)

	if err := v.ValidateFileSize(100); err != nil {
		t.Errorf("expected no error for size 100, got: %v", err)
	}
	if err := v.ValidateFileSize(150); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge for size 150, got: %v", err)
	}
}

func TestReader(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"under limit", 50, false},
		{"exactly limit", 100, false},
		{"over limit", 101, true},
		{"far over limit", 10_000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(100)
			data, err := io.ReadAll(v.Reader(strings.NewReader(strings.Repeat("x", tt.size))))
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Fatalf("err = %v, want ErrTooLarge", err)
				}
				if len(data) > 100 {
					t.Errorf("read %d bytes past the limit", len(data))
				}
				return
			}
			if err != nil || len(data) != tt.size {
				t.Errorf("read %d bytes, err %v", len(data), err)
			}
		})
	}
}

func TestNewValidator_Default(t *testing.T) {
	v := NewValidator(0)
	if v.maxFileSize != DefaultMaxFileSize {
		t.Errorf("max = %d, want default", v.maxFileSize)
	}
}
