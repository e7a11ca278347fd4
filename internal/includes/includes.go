// Package includes resolves #include <path> directives (spec.md §4.5)
// against a standard-library search directory. It is deliberately thin:
// path resolution and file reading only, kept separate from internal/parser
// so the parser package (which owns the actual nested-translation logic)
// has no import cycle back into it. Grounded on
// sentra-language-sentra/internal/vm/module_loader.go's resolvePath.
package includes

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EnvVar is the environment variable naming the standard-library root,
// per spec.md §4.5.
const EnvVar = "CX_STDLIB"

// Ext is the default source extension appended to an extensionless path.
const Ext = ".cx"

// Dir returns CX_STDLIB's current value, or "" if unset.
func Dir() string {
	return os.Getenv(EnvVar)
}

// Resolve locates the source file named by an #include path against dir
// (CX_STDLIB's resolved value) and returns its absolute path and contents.
// A path with no extension is tried both as given and with Ext appended.
// An absolute path is used as given; any relative path (including ./ and
// ../ forms) is tried first under dir, when dir is set, and then against
// the current working directory.
func Resolve(dir, path string) (resolved string, source string, err error) {
	candidates := candidatePaths(dir, path)
	for _, c := range candidates {
		abs, aerr := filepath.Abs(c)
		if aerr != nil {
			continue
		}
		data, rerr := os.ReadFile(abs)
		if rerr == nil {
			return abs, string(data), nil
		}
	}
	return "", "", errors.Errorf("include %q not found (searched %v)", path, candidates)
}

func candidatePaths(dir, path string) []string {
	bases := []string{path}
	if filepath.Ext(path) == "" {
		bases = append(bases, path+Ext)
	}
	var out []string
	for _, b := range bases {
		if filepath.IsAbs(b) {
			out = append(out, b)
			continue
		}
		if dir != "" {
			out = append(out, filepath.Join(dir, b))
		}
		out = append(out, b)
	}
	return out
}
