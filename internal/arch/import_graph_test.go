// Package arch provides architectural constraint tests.
// These tests enforce boundary rules and prevent unwanted dependencies.
package arch

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const module = "github.com/sufield/securechain"

// forbiddenImports lists, per layer, import path prefixes its non-test files must not use.
var forbiddenImports = map[string][]string{
	"internal/core": {
		"net/http",
		"net",
		"github.com/go-chi/chi",
		"github.com/prometheus/",
		"github.com/spf13/",
		"github.com/spiffe/go-spiffe",
		"github.com/fsnotify/fsnotify",
		"go.opentelemetry.io/",
		"software.sslmate.com/src/go-pkcs12",
		module + "/internal/adapters",
		module + "/internal/cli",
	},
	"internal/adapters": {
		module + "/internal/cli",
		"github.com/spf13/cobra",
	},
	"internal/shutdown": {
		module + "/internal/adapters",
		module + "/internal/core",
	},
}

// TestImportGraphConstraints fails when a layer imports something outside its boundary.
func TestImportGraphConstraints(t *testing.T) {
	t.Parallel()

	for dir, forbidden := range forbiddenImports {
		t.Run(dir, func(t *testing.T) {
			t.Parallel()

			violations := scanImports(t, filepath.Join("..", "..", dir), forbidden)
			assert.Empty(t, violations, "forbidden imports in %s", dir)
		})
	}
}

// TestCoreDomainIsLeaf keeps the domain package free of other internal packages.
func TestCoreDomainIsLeaf(t *testing.T) {
	t.Parallel()

	violations := scanImports(t, filepath.Join("..", "..", "internal", "core", "domain"), []string{module + "/"})
	assert.Empty(t, violations)
}

func scanImports(t *testing.T, root string, forbidden []string) []string {
	t.Helper()

	var violations []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, imp := range file.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if matchesAny(importPath, forbidden) {
				violations = append(violations, path+" imports "+importPath)
			}
		}
		return nil
	})
	require.NoError(t, err)
	return violations
}

// matchesAny treats entries ending in "/" as prefixes and the rest as a path or its subpackages.
func matchesAny(importPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(importPath, p) {
				return true
			}
			continue
		}
		if importPath == p || strings.HasPrefix(importPath, p+"/") {
			return true
		}
	}
	return false
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()

	assert.True(t, matchesAny("net", []string{"net"}))
	assert.True(t, matchesAny("net/http", []string{"net"}))
	assert.False(t, matchesAny("net/netip", []string{"net/http"}))
	assert.False(t, matchesAny("network", []string{"net"}))
	assert.True(t, matchesAny("github.com/prometheus/client_golang/prometheus", []string{"github.com/prometheus/"}))
}
