package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "S001",
			wantMsg: "Configuration file not found",
			wantCat: CategoryConfig,
		},
		{
			name:    "storage error",
			code:    "S021",
			wantMsg: "Storage write failed",
			wantCat: CategoryStorage,
		},
		{
			name:    "transport error",
			code:    "S042",
			wantMsg: "No receiver for runtime message",
			wantCat: CategoryTransport,
		},
		{
			name:    "unknown error code",
			code:    "S999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := New("S021").WithDetail("key a").Wrap(cause)

	got := err.Error()
	for _, want := range []string{"S021", "Storage write failed", "key a", "disk full"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestUnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := fmt.Errorf("outer: %w", New("S040").Wrap(cause))

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !stderrors.Is(err, New("S040")) {
		t.Error("errors.Is should match on code")
	}
	if stderrors.Is(err, New("S041")) {
		t.Error("errors.Is should not match a different code")
	}
	if got := CodeOf(err); got != "S040" {
		t.Errorf("CodeOf = %q, want S040", got)
	}
	if got := CodeOf(cause); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "S020") != nil {
		t.Error("FromError(nil) should be nil")
	}

	original := New("S060")
	if got := FromError(original, "S020"); got != original {
		t.Error("FromError should return existing SyncError unchanged")
	}

	plain := fmt.Errorf("plain")
	got := FromError(plain, "S020")
	if got.Code != "S020" || got.Wrapped != plain {
		t.Errorf("FromError = %+v, want S020 wrapping plain", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	out := New("S090").WithDetail("got \"cars\"").Format()
	for _, want := range []string{"ERROR S090: Unknown tracked key", "got \"cars\"", "Hint: Use 'addresses' or 'thresholds'"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "flag %q required", "--addr")
	if err.Message != `flag "--addr" required` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
}
