package quickfix

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestLocate_NearestSubsequentFrame(t *testing.T) {
	wd := t.TempDir()
	l := NewLocator(WithWorkDir(wd))

	backtrace := []string{
		"./foo_spec.rb:15:in `block'",
		"./helper.rb:3:in `call'",
	}

	got, ok := l.Locate("./foo_spec.rb:10", backtrace)
	if !ok {
		t.Fatal("expected a location")
	}
	if got != "foo_spec.rb:15" {
		t.Errorf("expected %q, got %q", "foo_spec.rb:15", got)
	}
}

func TestLocate_AbsoluteFrameIsRelativized(t *testing.T) {
	wd := t.TempDir()
	l := NewLocator(WithWorkDir(wd))

	frame := filepath.Join(wd, "spec", "models", "user_spec.rb") + ":42:in `block (2 levels)'"
	got, ok := l.Locate("./spec/models/user_spec.rb:30", []string{frame})
	if !ok {
		t.Fatal("expected a location")
	}
	want := filepath.Join("spec", "models", "user_spec.rb") + ":42"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLocate_TieBreakPicksSmallestGreaterLine(t *testing.T) {
	l := NewLocator(WithWorkDir(t.TempDir()))

	backtrace := []string{
		"./foo_spec.rb:40:in `block'",
		"./foo_spec.rb:8:in `block'",
		"./foo_spec.rb:22:in `block'",
		"./foo_spec.rb:12:in `block'",
	}

	got, ok := l.Locate("./foo_spec.rb:10", backtrace)
	if !ok {
		t.Fatal("expected a location")
	}
	if got != "foo_spec.rb:12" {
		t.Errorf("expected %q, got %q", "foo_spec.rb:12", got)
	}
}

func TestLocate_NotFound(t *testing.T) {
	l := NewLocator(WithWorkDir(t.TempDir()))

	tests := []struct {
		name      string
		example   string
		backtrace []string
	}{
		{
			name:      "empty backtrace",
			example:   "./foo_spec.rb:10",
			backtrace: nil,
		},
		{
			name:      "no frame in example file",
			example:   "./foo_spec.rb:10",
			backtrace: []string{"./helper.rb:3:in `call'"},
		},
		{
			name:      "only earlier lines",
			example:   "./foo_spec.rb:10",
			backtrace: []string{"./foo_spec.rb:10:in `block'", "./foo_spec.rb:4:in `block'"},
		},
		{
			name:      "unrecognized suffix",
			example:   "./foo.rb:10",
			backtrace: []string{"./foo.rb:15:in `block'"},
		},
		{
			name:      "substring match in another file",
			example:   "./foo_spec.rb:10",
			backtrace: []string{"./lib/foo_spec.rb_helper_spec.rb:20:in `call'"},
		},
		{
			name:      "non numeric frame line",
			example:   "./foo_spec.rb:10",
			backtrace: []string{"./foo_spec.rb:abc:in `block'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := l.Locate(tt.example, tt.backtrace)
			if ok {
				t.Errorf("expected no location, got %q", got)
			}
		})
	}
}

func TestLocate_WorkDirErrorIsSwallowed(t *testing.T) {
	l := NewLocator(WithLogger(zap.NewNop()))
	l.getwd = func() (string, error) { return "", errors.New("cwd removed") }

	got, ok := l.Locate("./foo_spec.rb:10", []string{"./foo_spec.rb:15:in `block'"})
	if ok {
		t.Errorf("expected no location, got %q", got)
	}
}

func TestLocate_CustomSuffixes(t *testing.T) {
	l := NewLocator(WithWorkDir(t.TempDir()), WithSuffixes("_check.py"))

	got, ok := l.Locate("math_check.py:3", []string{"math_check.py:9: in test_add"})
	if !ok || got != "math_check.py:9" {
		t.Errorf("expected math_check.py:9, got %q (ok=%v)", got, ok)
	}

	if _, ok := l.Locate("./foo_spec.rb:10", []string{"./foo_spec.rb:15:in `block'"}); ok {
		t.Error("default suffixes should no longer be recognized")
	}
}

func TestLocate_NoSuffixesNeverMatches(t *testing.T) {
	l := NewLocator(WithWorkDir(t.TempDir()), WithSuffixes())
	if got, ok := l.Locate("./foo_spec.rb:10", []string{"./foo_spec.rb:15:in `block'"}); ok {
		t.Errorf("expected no location, got %q", got)
	}
}

func TestLocate_GoTestFrames(t *testing.T) {
	l := NewLocator(WithWorkDir(t.TempDir()))

	backtrace := []string{
		"internal/calc/calc_test.go:18: expected 3, got 4",
		"internal/calc/calc_test.go:21: second assertion",
	}

	got, ok := l.Locate("internal/calc/calc_test.go:12", backtrace)
	if !ok {
		t.Fatal("expected a location")
	}
	want := filepath.Join("internal", "calc", "calc_test.go") + ":18"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLeadingInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"15", 15},
		{" 15", 15},
		{"15in `block'", 15},
		{"-3", -3},
		{"+7", 7},
		{"abc", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := leadingInt(tt.in); got != tt.want {
			t.Errorf("leadingInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
