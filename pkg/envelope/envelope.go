// Package envelope holds the response shapes of the HTTP API. The server
// renders only these and the client SDK decodes them strictly, so there
// is exactly one way a payload can look.
package envelope

// Single wraps one entity: {"data": ...}.
type Single[T any] struct {
	Data T `json:"data"`
}

// List wraps one page of a collection. Count is len(Data); Total counts
// every match of the query.
type List[T any] struct {
	Data       []T        `json:"data"`
	Count      int        `json:"count"`
	Total      int        `json:"total"`
	Pagination Pagination `json:"pagination"`
}

// Pagination links the neighbouring pages. A nil side does not exist.
type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Error is the failure body: {"error": {"code", "message", "fields"}}.
type Error struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// NewList builds a List for page number page of size limit.
func NewList[T any](items []T, total, page, limit int) List[T] {
	if items == nil {
		items = []T{}
	}
	out := List[T]{Data: items, Count: len(items), Total: total}
	if page*limit < total {
		out.Pagination.Next = &PageRef{Page: page + 1, Limit: limit}
	}
	if page > 1 {
		out.Pagination.Prev = &PageRef{Page: page - 1, Limit: limit}
	}
	return out
}
