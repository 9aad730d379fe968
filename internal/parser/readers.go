package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// readFile is shared plumbing: every reader's content-hash must cover
// exactly the bytes it reads, never the surrounding directory.
func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// --- CMake ---------------------------------------------------------------

type cmakeReader struct{}

func (cmakeReader) name() string   { return "cmake" }
func (cmakeReader) inferred() bool { return false }

func (cmakeReader) detect(dir string) (string, bool) {
	path := filepath.Join(dir, "CMakeLists.txt")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

var (
	reFindPackage      = regexp.MustCompile(`(?m)^\s*find_package\s*\(\s*([A-Za-z0-9_\-]+)`)
	rePkgCheckModules  = regexp.MustCompile(`(?m)pkg_check_modules\s*\(\s*\S+\s+(?:REQUIRED\s+)?(?:QUIET\s+)?([A-Za-z0-9_\-]+)`)
)

func (cmakeReader) parse(path string) ([]string, []byte, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	var deps []string
	for _, m := range reFindPackage.FindAllSubmatch(raw, -1) {
		deps = append(deps, string(m[1]))
	}
	for _, m := range rePkgCheckModules.FindAllSubmatch(raw, -1) {
		deps = append(deps, string(m[1]))
	}
	return dedupe(deps), raw, nil
}

// --- pkg-config ------------------------------------------------------------

type pkgConfigReader struct{}

func (pkgConfigReader) name() string   { return "pkg-config" }
func (pkgConfigReader) inferred() bool { return false }

func (pkgConfigReader) detect(dir string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.pc"))
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func (pkgConfigReader) parse(path string) ([]string, []byte, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	var deps []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		var rest string
		switch {
		case strings.HasPrefix(line, "Requires.private:"):
			rest = strings.TrimPrefix(line, "Requires.private:")
		case strings.HasPrefix(line, "Requires:"):
			rest = strings.TrimPrefix(line, "Requires:")
		default:
			continue
		}
		for _, tok := range strings.Split(rest, ",") {
			for _, field := range strings.Fields(tok) {
				if strings.ContainsAny(field, "<>=") {
					break // version constraint, not a package name
				}
				deps = append(deps, field)
				break
			}
		}
	}
	return dedupe(deps), raw, nil
}

// --- structured JSON manifest ---------------------------------------------

type jsonManifestReader struct{}

func (jsonManifestReader) name() string   { return "json" }
func (jsonManifestReader) inferred() bool { return false }

func (jsonManifestReader) detect(dir string) (string, bool) {
	path := filepath.Join(dir, "package.json")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (jsonManifestReader) parse(path string) ([]string, []byte, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	var doc struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, raw, err
	}
	deps := make([]string, 0, len(doc.Dependencies))
	for name := range doc.Dependencies {
		deps = append(deps, name)
	}
	return dedupe(deps), raw, nil
}

// --- free-text requirements list -------------------------------------------

type requirementsReader struct{}

func (requirementsReader) name() string   { return "requirements" }
func (requirementsReader) inferred() bool { return false }

func (requirementsReader) detect(dir string) (string, bool) {
	for _, fn := range []string{"requirements.txt", "REQUIREMENTS", "requirements"} {
		path := filepath.Join(dir, fn)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

var reVersionSpecifier = regexp.MustCompile(`[=<>!~].*$`)

func (requirementsReader) parse(path string) ([]string, []byte, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	var deps []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := strings.TrimSpace(reVersionSpecifier.ReplaceAllString(line, ""))
		if name != "" {
			deps = append(deps, name)
		}
	}
	return dedupe(deps), raw, nil
}

// --- autotools ---------------------------------------------------------

type autotoolsReader struct{}

func (autotoolsReader) name() string   { return "autotools" }
func (autotoolsReader) inferred() bool { return false }

func (autotoolsReader) detect(dir string) (string, bool) {
	path := filepath.Join(dir, "configure.ac")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

var (
	rePkgCheckModulesAC = regexp.MustCompile(`(?m)PKG_CHECK_MODULES\(\[?([A-Za-z0-9_]+)\]?\s*,\s*\[?([A-Za-z0-9_\-][A-Za-z0-9_\-\. ]*)\]?`)
	reCheckLib          = regexp.MustCompile(`(?m)AC_CHECK_LIB\(\s*\[?([A-Za-z0-9_\-]+)\]?`)
)

func (autotoolsReader) parse(path string) ([]string, []byte, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	var deps []string
	for _, m := range rePkgCheckModulesAC.FindAllSubmatch(raw, -1) {
		for _, field := range strings.Fields(string(m[2])) {
			deps = append(deps, field)
		}
	}
	for _, m := range reCheckLib.FindAllSubmatch(raw, -1) {
		deps = append(deps, string(m[1]))
	}
	return dedupe(deps), raw, nil
}

// --- structural fallback ---------------------------------------------------

type structuralFallbackReader struct{}

func (structuralFallbackReader) name() string   { return "structural-fallback" }
func (structuralFallbackReader) inferred() bool { return true }

var thirdPartyDirNames = []string{"third_party", "external", "deps", "vendor"}

func (structuralFallbackReader) detect(dir string) (string, bool) {
	for _, name := range thirdPartyDirNames {
		path := filepath.Join(dir, name)
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			return path, true
		}
	}
	return "", false
}

// parse lists the immediate subdirectories of the detected third_party-
// shaped directory as inferred dependencies. The "content" hashed is the
// sorted listing itself, not arbitrary directory metadata, so unrelated
// changes inside a subdirectory never invalidate the cache.
func (structuralFallbackReader) parse(path string) ([]string, []byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, err
	}
	var deps []string
	for _, e := range entries {
		if e.IsDir() {
			deps = append(deps, e.Name())
		}
	}
	deps = dedupe(deps)
	var buf bytes.Buffer
	for _, d := range deps {
		buf.WriteString(d)
		buf.WriteByte('\n')
	}
	return deps, buf.Bytes(), nil
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
