package gotest

import (
	"bufio"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// testPrefixes are the function name prefixes go test runs.
var testPrefixes = []string{"Test", "Fuzz", "Benchmark", "Example"}

type pkgEntry struct {
	dir   string
	funcs map[string]string // function name -> "file:line"
}

// Index maps packages to their directories and test functions to the line
// where they are declared.
type Index struct {
	modulePath string
	pkgs       map[string]*pkgEntry // keyed by slash-separated dir relative to root
}

// BuildIndex parses every _test.go file under root. Directories the go tool
// ignores (testdata, vendor, names starting with "." or "_") are skipped, as
// are files that do not parse.
func BuildIndex(root string) (*Index, error) {
	ix := &Index{
		modulePath: readModulePath(filepath.Join(root, "go.mod")),
		pkgs:       make(map[string]*pkgEntry),
	}
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil
		}

		dir := filepath.Dir(path)
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			return nil
		}
		entry := ix.entry(filepath.ToSlash(rel), dir)

		for _, decl := range f.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv != nil || !isTestFunc(fd.Name.Name) {
				continue
			}
			pos := fset.Position(fd.Pos())
			entry.funcs[fd.Name.Name] = filepath.Clean(path) + ":" + strconv.Itoa(pos.Line)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing tests under %s: %w", root, err)
	}
	return ix, nil
}

func (ix *Index) entry(rel, dir string) *pkgEntry {
	e, ok := ix.pkgs[rel]
	if !ok {
		e = &pkgEntry{dir: filepath.Clean(dir), funcs: make(map[string]string)}
		ix.pkgs[rel] = e
	}
	return e
}

// Dir returns the directory holding the tests of the given import path.
func (ix *Index) Dir(pkg string) (string, bool) {
	e := ix.lookup(pkg)
	if e == nil {
		return "", false
	}
	return e.dir, true
}

// Func returns "file:line" of the named test function in pkg.
func (ix *Index) Func(pkg, name string) (string, bool) {
	e := ix.lookup(pkg)
	if e == nil {
		return "", false
	}
	loc, ok := e.funcs[name]
	return loc, ok
}

// lookup resolves an import path through the module path when known, and
// otherwise by the longest directory that is a path suffix of pkg.
func (ix *Index) lookup(pkg string) *pkgEntry {
	if ix == nil {
		return nil
	}
	if ix.modulePath != "" {
		switch {
		case pkg == ix.modulePath:
			return ix.pkgs["."]
		case strings.HasPrefix(pkg, ix.modulePath+"/"):
			return ix.pkgs[strings.TrimPrefix(pkg, ix.modulePath+"/")]
		}
	}

	var best *pkgEntry
	bestLen := -1
	for rel, e := range ix.pkgs {
		if rel == "." {
			continue
		}
		if (pkg == rel || strings.HasSuffix(pkg, "/"+rel)) && len(rel) > bestLen {
			best, bestLen = e, len(rel)
		}
	}
	return best
}

func isTestFunc(name string) bool {
	for _, p := range testPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func skipDir(name string) bool {
	return name == "testdata" || name == "vendor" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// readModulePath returns the module path declared in a go.mod file, or "".
func readModulePath(gomod string) string {
	f, err := os.Open(gomod)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "module") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "module"))
		if i := strings.Index(rest, "//"); i >= 0 {
			rest = strings.TrimSpace(rest[:i])
		}
		if unq, err := strconv.Unquote(rest); err == nil {
			rest = unq
		}
		return rest
	}
	return ""
}
