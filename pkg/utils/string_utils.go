package utils

// NewNullString returns a pointer to s, or nil when s is empty. Used to map
// optional request fields onto nullable columns.
func NewNullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
