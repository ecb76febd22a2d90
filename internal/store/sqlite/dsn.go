package sqlite

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// connPragmas are applied by the driver to every connection it opens.
var connPragmas = []string{
	"busy_timeout(30000)",
	"foreign_keys(1)",
}

func parseDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "sqlite://") {
		return "", fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
	}

	rest := strings.TrimPrefix(dsn, "sqlite://")
	if rest == "" {
		return "", fmt.Errorf("sqlite DSN has no path")
	}

	path, query, _ := strings.Cut(rest, "?")

	if path != ":memory:" {
		unescaped, err := url.PathUnescape(path)
		if err != nil {
			return "", fmt.Errorf("unescaping path: %w", err)
		}
		path = unescaped
		if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
			path = "./" + path
		}
	}

	return path + "?" + withPragmas(query), nil
}

func withPragmas(query string) string {
	params := make([]string, 0, len(connPragmas)+1)
	if query != "" {
		params = append(params, query)
	}
	for _, pragma := range connPragmas {
		name, _, _ := strings.Cut(pragma, "(")
		if strings.Contains(query, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+pragma)
	}
	return strings.Join(params, "&")
}
