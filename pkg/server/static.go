package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// StaticFiles serves files below a single public directory.
type StaticFiles struct {
	Dir string
}

// ServeStatic writes the file at name, relative to Dir. Symlinks are
// resolved as if Dir were the filesystem root, so no lookup leaves it.
// Directories and missing files answer 404.
func (s *StaticFiles) ServeStatic(w http.ResponseWriter, r *http.Request, name string) error {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		writeText(w, http.StatusNotFound, "Not Found")
		return nil
	}

	path, err := securejoin.SecureJoin(s.Dir, name)
	if err != nil {
		return err
	}

	//nolint:gosec // path is confined to Dir by SecureJoin
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			writeText(w, http.StatusNotFound, "Not Found")
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		writeText(w, http.StatusNotFound, "Not Found")
		return nil
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}
