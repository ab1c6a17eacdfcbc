// Package utils holds the page arithmetic shared by the list and long-poll
// endpoints.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses a query value, returning def when it is blank or not an
// integer. Surrounding spaces are ignored.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 20

// ClampPage normalizes page numbering: pages start at 1 and a non-positive
// size falls back to DefaultPageSize.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return page, size
}

// Offset returns the row offset of a 1-based page.
func Offset(page, size int) int {
	if page < 1 || size <= 0 {
		return 0
	}
	return (page - 1) * size
}

// TotalPages returns ceil(total/size), or 0 for an empty result.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// ReportedPage is the page number echoed to clients: 0 when there is nothing
// to page through.
func ReportedPage(total int64, page int) int {
	if total == 0 {
		return 0
	}
	return page
}
