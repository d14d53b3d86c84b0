package protocol

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// FileURI converts a filesystem path to an absolute file:// URI.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("protocol: resolve %s: %w", path, err)
	}

	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	u := url.URL{Scheme: "file", Path: p}
	return u.String(), nil
}
