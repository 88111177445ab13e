package models

// Identity represents a verified staff account as supplied by the external
// session service. It is immutable for the lifetime of a connection.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
