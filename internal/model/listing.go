package model

import (
	"fmt"
	"strings"
)

// SortColumn names a column a folder listing may be ordered by.
type SortColumn string

const (
	SortByTitle      SortColumn = "title"
	SortByModifiedAt SortColumn = "modified_at"
	SortBySize       SortColumn = "node_size"
	SortByMimeType   SortColumn = "mime_type"
	SortByID         SortColumn = "id"
)

// Sorting orders children within each node type. Folders always come first.
type Sorting struct {
	Column     SortColumn
	Descending bool
}

// DefaultSorting orders by title ascending.
var DefaultSorting = Sorting{Column: SortByTitle}

// ParseSorting parses "column" or "column:asc|desc".
func ParseSorting(s string) (Sorting, error) {
	if s == "" {
		return DefaultSorting, nil
	}
	col, dir, _ := strings.Cut(s, ":")
	sorting := Sorting{Column: SortColumn(col)}
	if !sorting.Column.Valid() {
		return Sorting{}, fmt.Errorf("unknown sort column %q", col)
	}
	switch strings.ToLower(dir) {
	case "", "asc":
	case "desc":
		sorting.Descending = true
	default:
		return Sorting{}, fmt.Errorf("unknown sort direction %q", dir)
	}
	return sorting, nil
}

// Valid reports whether c is one of the known columns.
func (c SortColumn) Valid() bool {
	switch c {
	case SortByTitle, SortByModifiedAt, SortBySize, SortByMimeType, SortByID:
		return true
	}
	return false
}

func (s Sorting) String() string {
	if s.Descending {
		return string(s.Column) + ":desc"
	}
	return string(s.Column) + ":asc"
}

// ListOptions controls a paged folder listing. Page is 1-based; a zero
// PageSize returns every child.
type ListOptions struct {
	Sort     Sorting
	Page     int
	PageSize int
}

// Page is one page of a folder listing.
type Page struct {
	Items []*DisplayNode
	Total int
}
