package buildsys

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
)

// RootPlaceholder is replaced with the project root in source specifications
const RootPlaceholder = "$root"

// DefaultTempDir is the name of the directory (relative to the working directory) that receives
// intermediate build artifacts.
const DefaultTempDir = "bsTemp"

func normalizeSeparators(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}

// simplifyPath returns p relative to root if p lies inside root
func simplifyPath(root, p string) string {
	if root == "" {
		return p
	}

	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return normalizeSeparators(rel)
}

// pathExtension returns the extension of p without the leading dot
func pathExtension(p string) string {
	return strings.TrimPrefix(path.Ext(p), ".")
}

// ObjectPath computes the intermediate artifact path for source: the source is re-rooted below
// workDir/tempDir and its extension is replaced with ext. Sources outside of workDir can't be re-rooted.
func ObjectPath(workDir, tempDir, source, ext string) (string, error) {
	absSource := source
	if !filepath.IsAbs(absSource) {
		absSource = filepath.Join(workDir, absSource)
	}

	rel, err := filepath.Rel(workDir, absSource)
	if err != nil {
		return "", eris.Wrapf(err, "failed to relate %s to %s", source, workDir)
	}

	rel = normalizeSeparators(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", &UnsupportedSourceLocationError{Source: source, WorkDir: workDir}
	}

	rel = strings.TrimSuffix(rel, path.Ext(rel)) + "." + ext
	return normalizeSeparators(filepath.Join(workDir, tempDir, rel)), nil
}

// ExecutableName appends the platform's executable suffix to name
func ExecutableName(name, goos string) string {
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

// EnvVars returns the process environment with the given overrides applied
func EnvVars(overrides map[string]string) []string {
	osEnv := os.Environ()
	shellEnv := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		// skip overriden entries to avoid conflicts
		if _, present := overrides[parts[0]]; !present {
			shellEnv = append(shellEnv, item)
		}
	}

	for k, v := range overrides {
		shellEnv = append(shellEnv, fmt.Sprintf("%s=%s", k, v))
	}

	return shellEnv
}
