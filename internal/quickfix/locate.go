// Package quickfix renders failing tests as single-line "location: message"
// records for editor quickfix lists.
package quickfix

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultSuffixes are the test-file suffixes a backtrace frame must carry to be
// reported as the expectation location.
var DefaultSuffixes = []string{"_spec.rb", "_test.go"}

// Locator finds the expectation location of a failure: the line inside the
// test file where the failing assertion ran, as opposed to the line where the
// test case itself is declared.
type Locator struct {
	frameRe *regexp.Regexp
	getwd   func() (string, error)
	logger  *zap.Logger
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithSuffixes replaces the recognized test-file suffixes.
func WithSuffixes(suffixes ...string) LocatorOption {
	return func(l *Locator) { l.frameRe = frameRegexp(suffixes) }
}

// WithWorkDir makes relative paths resolve against a fixed directory instead
// of the process working directory.
func WithWorkDir(dir string) LocatorOption {
	return func(l *Locator) {
		l.getwd = func() (string, error) { return dir, nil }
	}
}

// WithLogger sets the logger used for swallowed resolution errors.
func WithLogger(logger *zap.Logger) LocatorOption {
	return func(l *Locator) { l.logger = logger }
}

// NewLocator creates a Locator recognizing DefaultSuffixes.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		frameRe: frameRegexp(DefaultSuffixes),
		getwd:   os.Getwd,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func frameRegexp(suffixes []string) *regexp.Regexp {
	quoted := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(s))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(.+(?:` + strings.Join(quoted, "|") + `)):(\d+)`)
}

// frame is a backtrace entry with its parsed line number.
type frame struct {
	text string
	line int
}

// Locate returns the "relative/path:line" of the nearest backtrace frame in the
// example's own file that lies after the example's declaration line. It
// reports false when no frame qualifies or anything along the way fails.
func (l *Locator) Locate(exampleLocation string, backtrace []string) (string, bool) {
	exampleLocation = strings.TrimPrefix(exampleLocation, "./")
	exampleFile, exampleLine := splitLocation(exampleLocation)

	candidates := framesMentioning(backtrace, exampleFile)
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].line < candidates[j].line
	})

	var chosen *frame
	for i := range candidates {
		if candidates[i].line > exampleLine {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return "", false
	}

	if l.frameRe == nil {
		return "", false
	}
	m := l.frameRe.FindStringSubmatch(chosen.text)
	if m == nil {
		return "", false
	}
	frameFile, frameLine := m[1], m[2]

	if filepath.Base(frameFile) != filepath.Base(exampleFile) {
		return "", false
	}

	rel, err := l.relativeToWorkDir(frameFile)
	if err != nil {
		l.logger.Debug("expectation location unresolved",
			zap.String("frame", chosen.text),
			zap.Error(err),
		)
		return "", false
	}
	return rel + ":" + frameLine, true
}

func (l *Locator) relativeToWorkDir(path string) (string, error) {
	wd, err := l.getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(wd, path)
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil {
		return "", fmt.Errorf("relativizing %q: %w", path, err)
	}
	return rel, nil
}

// splitLocation splits "file:line" into the first and last colon tokens.
func splitLocation(location string) (string, int) {
	parts := strings.Split(location, ":")
	return parts[0], leadingInt(parts[len(parts)-1])
}

func framesMentioning(backtrace []string, file string) []frame {
	var out []frame
	for _, text := range backtrace {
		if !strings.Contains(text, file) {
			continue
		}
		out = append(out, frame{text: text, line: frameLine(text)})
	}
	return out
}

// frameLine is the integer value of the second colon-delimited token.
func frameLine(text string) int {
	parts := strings.Split(text, ":")
	if len(parts) < 2 {
		return 0
	}
	return leadingInt(parts[1])
}

// leadingInt parses an optional sign and the leading digits of s after any
// leading whitespace. Anything unparsable is 0.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
