// Package gotest feeds a go test -json (test2json) event stream to a reporter.
package gotest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/failloc/internal/quickfix"
	"github.com/nixlim/failloc/internal/reporter"
)

// Name identifies this source in history.
const Name = "gotest"

const (
	defaultMaxOutputLines = 200
	maxEventSize          = 4 * 1024 * 1024
)

// Event is one test2json record.
type Event struct {
	Time        time.Time `json:"Time"`
	Action      string    `json:"Action"`
	Package     string    `json:"Package"`
	Test        string    `json:"Test"`
	Elapsed     float64   `json:"Elapsed"`
	Output      string    `json:"Output"`
	ImportPath  string    `json:"ImportPath"`
	FailedBuild string    `json:"FailedBuild"`
}

// Stats summarizes what a run fed to the reporter.
type Stats struct {
	Tests    int
	Failures int
	Skipped  int // malformed or non-JSON lines
}

var (
	// "    calc_test.go:18: expected 3, got 4", or a compiler error with a column.
	logLineRe = regexp.MustCompile(`^\s*([^\s:]+\.go):(\d+)(?::\d+)?:(?: (.*))?$`)
	// "	/home/u/proj/calc_test.go:25 +0x1d" in a panic trace.
	stackLineRe = regexp.MustCompile(`^\s*(/\S+\.go):(\d+)(?: \+0x[0-9a-f]+)?$`)
)

var markerPrefixes = []string{
	"=== RUN", "=== PAUSE", "=== CONT", "=== NAME",
	"--- FAIL", "--- PASS", "--- SKIP",
}

var packageNoisePrefixes = []string{
	"FAIL", "ok ", "PASS", "# ", "exit status",
}

// Source decodes test2json streams.
type Source struct {
	root     string
	maxLines int
	logger   *zap.Logger
	index    *Index
}

type Option func(*Source)

// WithRoot sets the directory test files are resolved against. It must be the
// directory go test ran in.
func WithRoot(root string) Option {
	return func(s *Source) { s.root = root }
}

// WithMaxOutputLines bounds the output kept per test.
func WithMaxOutputLines(n int) Option {
	return func(s *Source) { s.maxLines = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// WithIndex supplies a prebuilt test index instead of scanning root.
func WithIndex(ix *Index) Option {
	return func(s *Source) { s.index = ix }
}

func New(opts ...Option) *Source {
	s := &Source{
		root:     ".",
		maxLines: defaultMaxOutputLines,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type testKey struct {
	pkg  string
	test string
}

// run holds the per-stream state.
type run struct {
	src      *Source
	rep      reporter.Reporter
	outputs  map[testKey]*lineBuffer
	reported map[testKey]bool
	pkgFail  map[string]bool
	stats    Stats
}

// Run reads events from r until EOF, reporting each failing test as soon as
// its fail event arrives, then completes the run. A read error aborts the run
// without completing it.
func (s *Source) Run(ctx context.Context, r io.Reader, rep reporter.Reporter) (Stats, error) {
	st := &run{
		src:      s,
		rep:      rep,
		outputs:  make(map[testKey]*lineBuffer),
		reported: make(map[testKey]bool),
		pkgFail:  make(map[string]bool),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st.stats, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var ev Event
		if !strings.HasPrefix(line, "{") || json.Unmarshal([]byte(line), &ev) != nil {
			st.stats.Skipped++
			s.logger.Debug("skipping non-event line", zap.String("line", line))
			continue
		}
		st.handle(ev)
	}
	if err := sc.Err(); err != nil {
		return st.stats, fmt.Errorf("reading test2json stream: %w", err)
	}

	rep.OnRunComplete()
	return st.stats, nil
}

func (st *run) handle(ev Event) {
	switch ev.Action {
	case "output":
		st.buffer(testKey{ev.Package, ev.Test}).Add(strings.TrimRight(ev.Output, "\r\n"))
	case "build-output":
		st.buffer(buildKey(ev.ImportPath)).Add(strings.TrimRight(ev.Output, "\r\n"))
	case "pass", "skip":
		if ev.Test != "" {
			st.stats.Tests++
			delete(st.outputs, testKey{ev.Package, ev.Test})
		}
	case "fail":
		if ev.Test != "" {
			st.stats.Tests++
			st.reportTest(ev.Package, ev.Test)
			return
		}
		st.reportPackage(ev)
	}
}

func (st *run) buffer(k testKey) *lineBuffer {
	b, ok := st.outputs[k]
	if !ok {
		b = newLineBuffer(st.src.maxLines)
		st.outputs[k] = b
	}
	return b
}

func (st *run) take(k testKey) []string {
	b, ok := st.outputs[k]
	if !ok {
		return nil
	}
	delete(st.outputs, k)
	if n := b.Dropped(); n > 0 {
		st.src.logger.Debug("test output truncated",
			zap.String("package", k.pkg),
			zap.String("test", k.test),
			zap.Int("dropped_lines", n),
		)
	}
	return b.Lines()
}

func (st *run) reportTest(pkg, test string) {
	key := testKey{pkg, test}
	lines := st.take(key)

	dir, hasDir := st.src.testIndex().Dir(pkg)
	var (
		message []string
		frames  []string
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || hasAnyPrefix(trimmed, markerPrefixes) {
			continue
		}
		if m := logLineRe.FindStringSubmatch(line); m != nil {
			file := m[1]
			if hasDir && !filepath.IsAbs(file) {
				file = filepath.Join(dir, file)
			}
			frames = append(frames, filepath.ToSlash(file)+":"+m[2]+": "+m[3])
			if m[3] != "" {
				message = append(message, m[3])
			}
			continue
		}
		if m := stackLineRe.FindStringSubmatch(line); m != nil {
			frames = append(frames, m[1]+":"+m[2])
		}
		message = append(message, trimmed)
	}

	if len(message) == 0 && st.hasReportedSubtest(key) {
		return
	}

	ev := quickfix.FailureEvent{
		ExampleLocation:  st.src.exampleLocation(pkg, test, frames),
		ExceptionMessage: strings.Join(message, "\n"),
		Backtrace:        frames,
	}
	if ev.ExceptionMessage == "" {
		ev.ExceptionMessage = test + " failed"
	}

	st.reported[key] = true
	st.pkgFail[pkg] = true
	st.stats.Failures++
	st.rep.OnFailure(ev)
}

func (st *run) hasReportedSubtest(parent testKey) bool {
	prefix := parent.test + "/"
	for k := range st.reported {
		if k.pkg == parent.pkg && strings.HasPrefix(k.test, prefix) {
			return true
		}
	}
	return false
}

// reportPackage reports a package failure that no test failure explains, such
// as a build error or a panic in TestMain.
func (st *run) reportPackage(ev Event) {
	lines := st.take(buildKey(ev.Package))
	if ev.FailedBuild != "" && buildPackage(ev.FailedBuild) != ev.Package {
		lines = append(lines, st.take(buildKey(ev.FailedBuild))...)
	}
	lines = append(lines, st.take(testKey{ev.Package, ""})...)
	if st.pkgFail[ev.Package] {
		return
	}

	location := ev.Package
	var message []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || hasAnyPrefix(trimmed, packageNoisePrefixes) {
			continue
		}
		if location == ev.Package {
			if m := logLineRe.FindStringSubmatch(line); m != nil {
				location = st.src.rootPath(m[1]) + ":" + m[2]
			}
		}
		message = append(message, trimmed)
	}
	if len(message) == 0 {
		message = []string{"package " + ev.Package + " failed"}
	}

	st.pkgFail[ev.Package] = true
	st.stats.Failures++
	st.rep.OnFailure(quickfix.FailureEvent{
		ExampleLocation:  location,
		ExceptionMessage: strings.Join(message, "\n"),
	})
}

// exampleLocation is the declaration of the top-level test function, falling
// back to the first frame and then to the package path.
func (s *Source) exampleLocation(pkg, test string, frames []string) string {
	top, _, _ := strings.Cut(test, "/")
	if loc, ok := s.testIndex().Func(pkg, top); ok {
		return filepath.ToSlash(loc)
	}
	if len(frames) > 0 {
		if m := logLineRe.FindStringSubmatch(frames[0]); m != nil {
			return m[1] + ":" + m[2]
		}
		if m := stackLineRe.FindStringSubmatch(frames[0]); m != nil {
			return m[1] + ":" + m[2]
		}
	}
	return pkg
}

func (s *Source) testIndex() *Index {
	if s.index != nil {
		return s.index
	}
	ix, err := BuildIndex(s.root)
	if err != nil {
		s.logger.Warn("test index unavailable, locations fall back to output",
			zap.String("root", s.root),
			zap.Error(err),
		)
		ix = &Index{pkgs: map[string]*pkgEntry{}}
	}
	s.index = ix
	return ix
}

func (s *Source) rootPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.ToSlash(filepath.Join(s.root, file))
}

// buildKey is where compiler output for a package is buffered, apart from the
// package's own output.
func buildKey(importPath string) testKey {
	return testKey{pkg: buildPackage(importPath), test: "\x00build"}
}

// buildPackage strips the " [pkg.test]" variant suffix from a build ImportPath.
func buildPackage(importPath string) string {
	pkg, _, _ := strings.Cut(importPath, " ")
	return pkg
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
