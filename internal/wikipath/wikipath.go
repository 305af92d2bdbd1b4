// Package wikipath implements the wiki's path algebra. Paths are absolute,
// `/`-rooted, with non-empty segments. Apart from dropping one trailing
// slash, Normalize never rewrites a path into shape: any other non-canonical
// path is an error.
package wikipath

import (
	"strings"

	"github.com/wikora/wikora/internal/types"
)

// Root is the path of the bootstrap page. It is immutable with respect to
// rename and delete.
const Root = "/"

// Normalize validates p and returns its canonical form. The only rewrite
// performed is dropping a single trailing slash on a non-root path.
func Normalize(p string) (string, error) {
	if p == "" {
		return "", types.E(types.KindBadInput, "empty path")
	}
	if !strings.HasPrefix(p, "/") {
		return "", types.E(types.KindBadInput, "path %q is not absolute", p)
	}
	if p == Root {
		return Root, nil
	}
	if strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
		if p == "" {
			return Root, nil
		}
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "" {
			return "", types.E(types.KindBadInput, "path contains an empty segment")
		}
		if seg == "." || seg == ".." {
			return "", types.E(types.KindBadInput, "path contains a relative segment")
		}
		if strings.ContainsAny(seg, "\x00") {
			return "", types.E(types.KindBadInput, "path contains a NUL byte")
		}
	}
	return p, nil
}

// IsRoot reports whether p is the root path.
func IsRoot(p string) bool { return p == Root }

// Parent returns the parent path of p. The parent of a top-level page and
// of the root itself is the root.
func Parent(p string) string {
	if p == Root {
		return Root
	}
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return Root
	}
	return p[:i]
}

// IsDescendant reports whether p lies strictly under ancestor, respecting
// segment boundaries: "/ab" is not a descendant of "/a".
func IsDescendant(p, ancestor string) bool {
	if ancestor == Root {
		return p != Root
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Rebase rewrites p from the subtree at from to the subtree at to.
// p must equal from or be a descendant of it.
func Rebase(p, from, to string) string {
	if p == from {
		return to
	}
	rel := strings.TrimPrefix(p, from)
	if to == Root {
		return rel
	}
	return to + rel
}

// HasPrefix reports whether p falls under the listing prefix pfx. Unlike
// IsDescendant this treats the prefix as a raw string bound, because list
// enumeration is lexicographic: prefix "/a" matches "/a", "/a/b" and "/ab".
func HasPrefix(p, pfx string) bool {
	return strings.HasPrefix(p, pfx)
}

// Name returns the final segment of p, or "/" for the root.
func Name(p string) string {
	if p == Root {
		return Root
	}
	return p[strings.LastIndex(p, "/")+1:]
}
