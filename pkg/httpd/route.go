package httpd

import (
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// RouteKind is how a request will be handled.
type RouteKind int

const (
	NotFoundRoute RouteKind = iota
	ForbiddenRoute
	MethodNotAllowedRoute
	ScriptRoute
	StaticRoute
)

func (k RouteKind) String() string {
	switch k {
	case ForbiddenRoute:
		return "forbidden"
	case MethodNotAllowedRoute:
		return "method not allowed"
	case ScriptRoute:
		return "script"
	case StaticRoute:
		return "static"
	default:
		return "not found"
	}
}

// Route is the result of routing a request. File is set for script and static routes.
type Route struct {
	Kind RouteKind
	File string
}

// DefaultScriptsDir is the directory under the root whose executables are run as scripts.
const DefaultScriptsDir = "scripts"

var errEscapesRoot = errors.New("path escapes root")

// Router classifies requests against a root directory.
type Router struct {
	Root       string
	ScriptsDir string
}

// Route decides how to handle method and p. Paths starting with /.. or
// /forbidden, as sent or once decoded and cleaned, are refused before anything
// else is looked at; any other path that resolves outside of Root is refused too.
func (rt *Router) Route(method, p string) Route {
	decoded := p
	if u, err := url.PathUnescape(p); err == nil {
		decoded = u
	}
	for _, candidate := range []string{p, decoded, path.Clean(decoded)} {
		if forbiddenPrefix(candidate) {
			return Route{Kind: ForbiddenRoute}
		}
	}
	if method != "GET" && method != "POST" {
		return Route{Kind: MethodNotAllowedRoute}
	}
	if !strings.HasPrefix(p, "/") {
		return Route{Kind: NotFoundRoute}
	}

	root, err := filepath.Abs(rt.Root)
	if err != nil {
		return Route{Kind: NotFoundRoute}
	}
	file, err := resolve(root, decoded)
	if err != nil {
		if errors.Is(err, errEscapesRoot) {
			return Route{Kind: ForbiddenRoute}
		}
		return Route{Kind: NotFoundRoute}
	}

	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		return Route{Kind: NotFoundRoute}
	}

	scriptsDir := rt.ScriptsDir
	if scriptsDir == "" {
		scriptsDir = DefaultScriptsDir
	}
	if within(filepath.Join(root, scriptsDir), file) {
		if info.Mode().Perm()&0111 == 0 {
			return Route{Kind: NotFoundRoute}
		}
		return Route{Kind: ScriptRoute, File: file}
	}
	return Route{Kind: StaticRoute, File: file}
}

func forbiddenPrefix(p string) bool {
	return strings.HasPrefix(p, "/..") || strings.HasPrefix(p, "/forbidden")
}

// resolve joins the decoded request path under root and makes sure neither the
// cleaned path nor its symlink target leaves root.
func resolve(root, p string) (string, error) {
	file := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if !within(root, file) && file != root {
		return "", errEscapesRoot
	}

	realFile, err := filepath.EvalSymlinks(file)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	if realFile != realRoot && !within(realRoot, realFile) {
		return "", errEscapesRoot
	}
	return file, nil
}

// within reports whether p is strictly inside dir.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
