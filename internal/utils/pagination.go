// Package utils provides small helpers shared across layers, chiefly the
// paging rules applied to every admin listing.
package utils

import "strconv"

// Workbench paging bounds. Listings default to 50 rows and never return
// more than 200 in one page, whatever the client asks for.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// AtoiDefault parses s as an int, returning def when s is empty or not a
// number. Query-string paging params go through this before clamping.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage normalizes a 1-based page number; anything below 1 becomes 1.
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// ClampPageSize bounds a requested page size to [1, MaxPageSize], with
// non-positive values falling back to DefaultPageSize.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// PageBounds converts a page and page size into the store's offset and
// limit after clamping both.
func PageBounds(page, pageSize int) (offset, limit int) {
	page = ClampPage(page)
	limit = ClampPageSize(pageSize)
	return (page - 1) * limit, limit
}
