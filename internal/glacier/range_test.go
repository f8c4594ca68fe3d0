package glacier

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
)

func TestContentRange(t *testing.T) {
	tests := []struct {
		r    ByteRange
		want string
	}{
		{ByteRange{Start: 0, End: 1048575, Total: 3145728}, "bytes 0-1048575/*"},
		{ByteRange{Start: 1048576, End: 2097151, Total: 3145728}, "bytes 1048576-2097151/*"},
		{ByteRange{Start: 0, End: 0, Total: 1}, "bytes 0-0/*"},
	}
	for _, tt := range tests {
		if got := tt.r.ContentRange(); got != tt.want {
			t.Errorf("ContentRange(%+v) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("1048576-2097151")
	if err != nil {
		t.Fatalf("parseRange() error: %v", err)
	}
	if start != 1048576 || end != 2097151 {
		t.Errorf("parseRange() = %d, %d, want 1048576, 2097151", start, end)
	}

	for _, bad := range []string{"", "abc", "12", "12-"} {
		if _, _, err := parseRange(bad); err == nil {
			t.Errorf("parseRange(%q) succeeded, want error", bad)
		}
	}
}

func TestWrapNotFound(t *testing.T) {
	svcErr := &types.ResourceNotFoundException{}
	err := wrapNotFound(fmt.Errorf("call: %w", svcErr), "list parts")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("wrapNotFound() = %v, does not match ErrNotFound", err)
	}

	plain := errors.New("dial tcp: connection refused")
	err = wrapNotFound(plain, "list parts")
	if errors.Is(err, ErrNotFound) {
		t.Error("wrapNotFound() mapped a transport error to ErrNotFound")
	}
	if !errors.Is(err, plain) {
		t.Error("wrapNotFound() lost the original error")
	}
}
