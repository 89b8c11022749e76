//go:build integration

package arch_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

// transitiveForbidden must not be reachable from core through any chain of imports.
var transitiveForbidden = []string{
	"github.com/go-chi/chi",
	"github.com/prometheus/",
	"github.com/spf13/",
	"go.opentelemetry.io/",
	"github.com/sufield/securechain/internal/adapters",
	"github.com/sufield/securechain/internal/cli",
}

// TestCoreTransitiveDependencies loads internal/core with full dependency information
// and reports the import chain behind every violation.
func TestCoreTransitiveDependencies(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps,
		Dir:  "../..",
	}
	pkgs, err := packages.Load(cfg, "./internal/core/...")
	require.NoError(t, err)
	require.NotEmpty(t, pkgs)

	violations := make(map[string][]string)
	for _, p := range pkgs {
		require.Empty(t, p.Errors, "load errors in %s", p.PkgPath)
		walk(p, []string{p.PkgPath}, make(map[string]bool), violations)
	}

	if len(violations) == 0 {
		return
	}
	keys := make([]string, 0, len(violations))
	for k := range violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.Errorf("%s reached via %s", k, strings.Join(violations[k], " -> "))
	}
}

func walk(p *packages.Package, chain []string, seen map[string]bool, violations map[string][]string) {
	for path, imp := range p.Imports {
		if seen[path] {
			continue
		}
		seen[path] = true

		next := append(append([]string(nil), chain...), path)
		for _, prefix := range transitiveForbidden {
			if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
				if _, ok := violations[path]; !ok {
					violations[path] = next
				}
			}
		}
		walk(imp, next, seen, violations)
	}
}
