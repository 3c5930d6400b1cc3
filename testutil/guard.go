// Package testutil provides test helpers that enforce the import boundaries
// between the graph contract, the mapping core and the storage engines.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports scans the non-test .go files in dir (typically "."
// from within the package) and fails if any import path satisfies forbidden.
// It does not follow build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// EngineImportForbidden matches the concrete graph and blob engines as well
// as the SQL drivers and cloud SDKs behind them.
func EngineImportForbidden(path string) bool {
	switch {
	case strings.Contains(path, "/internal/infra/"):
		return true
	case path == "database/sql", strings.HasPrefix(path, "modernc.org/sqlite"),
		strings.HasPrefix(path, "github.com/jackc/pgx"), strings.HasPrefix(path, "github.com/aws/"):
		return true
	}
	return false
}

// ServiceImportForbidden matches the service, configuration and lock
// packages that sit above the mapping core.
func ServiceImportForbidden(path string) bool {
	for _, suffix := range []string{"/internal/core", "/internal/config", "/internal/lock"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Any combines predicates.
func Any(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		fileAst, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
