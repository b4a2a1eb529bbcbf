package build

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Dirs is the layout of one model's build directory.
type Dirs struct {
	Root    string `json:"root"`
	Src     string `json:"src"`
	Compile string `json:"compile"`
	Install string `json:"install"`
}

// snapshotName is the canonical model written next to generated sources.
const snapshotName = "built_model.json"

// Prefix derives the build directory prefix from a model's source URL:
// "GEN-" when the model has none, "URL-" plus host and path for URLs and
// "FILE-" plus the absolute path for anything else.
func Prefix(source string) string {
	if source == "" {
		return "GEN-"
	}
	var p string
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Host != "" {
		p = "URL-" + u.Host + u.Path
	} else {
		path := source
		if u != nil && u.Scheme == "file" {
			path = u.Path
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if real, err := filepath.EvalSymlinks(path); err == nil {
			path = real
		}
		p = "FILE-" + path
	}
	return sanitize(p)
}

func sanitize(s string) string {
	return strings.NewReplacer(".", "_", ":", "_", "/", "__").Replace(s)
}

// NewDirs lays out the build directory of a model under base. An empty
// prefix is derived from source with Prefix.
func NewDirs(base, name, source, prefix string) Dirs {
	if prefix == "" {
		prefix = Prefix(source)
	}
	root := filepath.Join(base, prefix+name)
	return Dirs{
		Root:    root,
		Src:     filepath.Join(root, "src"),
		Compile: filepath.Join(root, "compile"),
		Install: filepath.Join(root, "install"),
	}
}

func (d Dirs) snapshot() string {
	return filepath.Join(d.Src, snapshotName)
}
