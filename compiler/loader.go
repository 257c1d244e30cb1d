package compiler

import (
	"path/filepath"

	"github.com/emberlang/ember/lang"
)

// Loader resolves an import path to a parsed source tree. The compiler
// calls it with an absolute, normalized path ending in ".em".
type Loader interface {
	Load(path string) (*lang.Tree, error)
}

// normalizeImport turns an import path into the canonical absolute path of
// an ".em" file. A path with no extension gets ".em" appended; any other
// extension is rejected. Relative paths resolve against dir.
func normalizeImport(dir, path string) (string, error) {
	switch filepath.Ext(path) {
	case "":
		path += ".em"
	case ".em":
		// already explicit
	default:
		return "", Errorf("import: expected a .em file, got %q", path)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", Errorf("import: cannot resolve %q: %v", path, err)
	}
	return filepath.Clean(abs), nil
}
