// Command arch-check enforces the dependency direction between layers:
// the domain package stays free of internal imports, planning and
// simulation stay below persistence, and nothing imports the commands.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

const modulePath = "batchcore"

// layerRules maps a package prefix to import prefixes it must not reach.
var layerRules = []struct {
	Source    string
	Forbidden []string
}{
	{modulePath + "/pkg/domain", []string{modulePath + "/internal", modulePath + "/cmd"}},
	{modulePath + "/internal/sim", []string{modulePath + "/internal/infra", modulePath + "/internal/core", modulePath + "/internal/blob"}},
	{modulePath + "/internal/planner", []string{modulePath + "/internal/infra", modulePath + "/internal/core", modulePath + "/internal/blob"}},
	{modulePath + "/internal/partition", []string{modulePath + "/internal/infra", modulePath + "/internal/core", modulePath + "/internal/blob"}},
	{modulePath + "/internal/runner", []string{modulePath + "/internal/infra", modulePath + "/internal/core", modulePath + "/internal/blob"}},
	{modulePath + "/internal/infra", []string{modulePath + "/internal/core", modulePath + "/cmd"}},
	{modulePath + "/internal/core", []string{modulePath + "/cmd"}},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("arch-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", ".", "module directory to inspect")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports,
		Dir:  *dir,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		fmt.Fprintf(stderr, "arch-check: load packages: %v\n", err)
		return 1
	}
	if packages.PrintErrors(pkgs) > 0 {
		return 1
	}

	violations := checkLayers(pkgs)
	for _, v := range violations {
		fmt.Fprintln(stdout, v)
	}
	if len(violations) > 0 {
		fmt.Fprintf(stdout, "%d layering violations\n", len(violations))
		return 1
	}
	fmt.Fprintf(stdout, "checked %d packages, layering ok\n", len(pkgs))
	return 0
}

func checkLayers(pkgs []*packages.Package) []string {
	var violations []string
	for _, pkg := range pkgs {
		for _, rule := range layerRules {
			if !strings.HasPrefix(pkg.PkgPath, rule.Source) {
				continue
			}
			for imp := range pkg.Imports {
				for _, forbidden := range rule.Forbidden {
					if strings.HasPrefix(imp, forbidden) {
						violations = append(violations, fmt.Sprintf("%s imports %s", pkg.PkgPath, imp))
					}
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}
