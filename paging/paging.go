// Package paging builds the limit/after/before query of list endpoints and
// reads the cursors that paged responses carry.
package paging

import (
	"net/url"
	"strconv"
	"strings"
)

type direction uint8

const (
	none direction = iota
	after
	before
)

// Cursor is an optional directional marker. The zero value means "no cursor";
// After and Before are the only constructors, so a cursor never points both
// ways.
type Cursor struct {
	dir   direction
	token string
}

// After returns a cursor selecting the page after token.
func After(token string) Cursor {
	return Cursor{dir: after, token: token}
}

// Before returns a cursor selecting the page before token.
func Before(token string) Cursor {
	return Cursor{dir: before, token: token}
}

// IsZero reports whether c carries no cursor.
func (c Cursor) IsZero() bool { return c.dir == none }

// Token returns the opaque cursor value.
func (c Cursor) Token() string { return c.token }

func (c Cursor) param() string {
	switch c.dir {
	case after:
		return "after"
	case before:
		return "before"
	}
	return ""
}

// Page is an optional page size plus an optional cursor. A Limit <= 0 means
// the server default.
type Page struct {
	Limit  int
	Cursor Cursor
}

// Render appends the page's query parameters to base. Parameters are written
// in the order limit, then after or before; when base already has a query the
// suffix is joined with '&'.
func (p Page) Render(base string) string {
	var params []string
	if p.Limit > 0 {
		params = append(params, "limit="+strconv.Itoa(p.Limit))
	}
	if !p.Cursor.IsZero() {
		params = append(params, p.Cursor.param()+"="+url.QueryEscape(p.Cursor.token))
	}
	if len(params) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + strings.Join(params, "&")
}

// Cursors is the "cursors" object of a paged response.
type Cursors struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Paging is the "paging" object of a paged response.
type Paging struct {
	Cursors Cursors `json:"cursors"`
}

// Next returns the page following the current one, keeping limit. ok is
// false on the last page.
func (p Paging) Next(limit int) (Page, bool) {
	if p.Cursors.After == "" {
		return Page{}, false
	}
	return Page{Limit: limit, Cursor: After(p.Cursors.After)}, true
}

// Prev returns the page preceding the current one, keeping limit. ok is
// false on the first page.
func (p Paging) Prev(limit int) (Page, bool) {
	if p.Cursors.Before == "" {
		return Page{}, false
	}
	return Page{Limit: limit, Cursor: Before(p.Cursors.Before)}, true
}
