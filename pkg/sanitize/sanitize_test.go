package sanitize

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/depotgate/depotgate/pkg/errdefs"
)

func TestComponent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain string untouched",
			in:   "tenant-a",
			want: "tenant-a",
		},
		{
			name: "slashes replaced",
			in:   "a/b/c",
			want: "a_b_c",
		},
		{
			name: "backslashes replaced",
			in:   `a\b`,
			want: "a_b",
		},
		{
			name: "dots replaced",
			in:   "..",
			want: "__",
		},
		{
			name: "traversal attempt flattened",
			in:   "../../etc",
			want: "______etc",
		},
		{
			name: "empty becomes invalid",
			in:   "",
			want: "invalid",
		},
		{
			name: "long input truncated",
			in:   strings.Repeat("x", 300),
			want: strings.Repeat("x", 200),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Component(tt.in); got != tt.want {
				t.Errorf("Component(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateTaskID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"simple", "task-1", false},
		{"underscores", "run_2024_01", false},
		{"alphanumeric", "A1b2C3", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"dots", "../../etc", true},
		{"space", "task 1", true},
		{"unicode", "tâche", true},
		{"max length", strings.Repeat("a", 256), false},
		{"over max length", strings.Repeat("a", 257), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTaskID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTaskID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errdefs.ErrInvalidIdentifier) {
				t.Errorf("ValidateTaskID(%q) error %v is not ErrInvalidIdentifier", tt.in, err)
			}
		})
	}
}

func TestResolveUnderBase(t *testing.T) {
	base := t.TempDir()

	t.Run("simple child", func(t *testing.T) {
		got, err := ResolveUnderBase(base, "a/b")
		if err != nil {
			t.Fatalf("ResolveUnderBase() error = %v", err)
		}
		want := filepath.Join(base, "a", "b")
		if got != want {
			t.Errorf("ResolveUnderBase() = %q, want %q", got, want)
		}
	})

	t.Run("base itself", func(t *testing.T) {
		got, err := ResolveUnderBase(base, ".")
		if err != nil {
			t.Fatalf("ResolveUnderBase() error = %v", err)
		}
		if got != base {
			t.Errorf("ResolveUnderBase() = %q, want %q", got, base)
		}
	})

	t.Run("absolute rejected", func(t *testing.T) {
		_, err := ResolveUnderBase(base, "/etc/cron.d")
		if !errors.Is(err, errdefs.ErrPathViolation) {
			t.Errorf("ResolveUnderBase() error = %v, want ErrPathViolation", err)
		}
	})

	t.Run("escape rejected", func(t *testing.T) {
		_, err := ResolveUnderBase(base, "../outside")
		if !errors.Is(err, errdefs.ErrPathViolation) {
			t.Errorf("ResolveUnderBase() error = %v, want ErrPathViolation", err)
		}
	})

	t.Run("nested escape rejected", func(t *testing.T) {
		_, err := ResolveUnderBase(base, "a/../../outside")
		if !errors.Is(err, errdefs.ErrPathViolation) {
			t.Errorf("ResolveUnderBase() error = %v, want ErrPathViolation", err)
		}
	})

	t.Run("sibling prefix rejected", func(t *testing.T) {
		// /tmp/base-evil must not pass as a descendant of /tmp/base.
		_, err := ResolveUnderBase(base, "../"+filepath.Base(base)+"-evil/x")
		if !errors.Is(err, errdefs.ErrPathViolation) {
			t.Errorf("ResolveUnderBase() error = %v, want ErrPathViolation", err)
		}
	})
}

func TestNeutralizeSegments(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"out/run-1", "out/run-1"},
		{"../../etc", "etc"},
		{"a/./b/../c", "a/b/c"},
		{"", ""},
		{"..", ""},
	}
	for _, tt := range tests {
		if got := NeutralizeSegments(tt.in); got != tt.want {
			t.Errorf("NeutralizeSegments(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantScheme string
		wantBody   string
		wantErr    bool
	}{
		{"fs location", "fs://tenant/task/abc", "fs", "tenant/task/abc", false},
		{"http destination", "http://example.com/up", "http", "example.com/up", false},
		{"empty body", "fs://", "fs", "", false},
		{"absolute body kept", "fs:///etc/cron.d", "fs", "/etc/cron.d", false},
		{"bare path", "/etc/passwd", "", "", true},
		{"relative path", "a/b", "", "", true},
		{"missing scheme", "://x", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheme, body, err := ParseLocation(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocation(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, errdefs.ErrInvalidLocation) {
					t.Errorf("ParseLocation(%q) error %v is not ErrInvalidLocation", tt.in, err)
				}
				return
			}
			if scheme != tt.wantScheme || body != tt.wantBody {
				t.Errorf("ParseLocation(%q) = (%q, %q), want (%q, %q)", tt.in, scheme, body, tt.wantScheme, tt.wantBody)
			}
		})
	}
}
