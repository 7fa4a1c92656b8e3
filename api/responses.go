package api

// CheckResponse is the response for a permission or module check.
type CheckResponse struct {
	Allowed           bool     `json:"allowed" description:"Whether every requested grant is held"`
	Missing           []string `json:"missing,omitempty" description:"Requested permissions or modules not held"`
	HighestPrecedence int      `json:"highest_precedence" description:"Most authoritative precedence held"`
}

// ErrorResponse is written for failures the Forge error helpers do not cover.
type ErrorResponse struct {
	Error string `json:"error" description:"Human-readable message"`
	Code  string `json:"code" description:"Machine-readable code"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
