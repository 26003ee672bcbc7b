package ai

import "fmt"

// NoCandidatesError is returned by the routing engine when no available
// model supports the requested category at the required context size.
type NoCandidatesError struct {
	Category        Category
	EstimatedTokens int
}

func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("no available model can serve category %s with an estimated %d tokens", e.Category, e.EstimatedTokens)
}

// UnknownModelError is returned by registry lookups for keys that are not
// in the catalog.
type UnknownModelError struct {
	Key string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Key)
}

// DuplicateModelError is returned when a catalog defines the same key twice.
type DuplicateModelError struct {
	Key string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("duplicate model key %q in catalog", e.Key)
}
