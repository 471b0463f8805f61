package db

import "github.com/hazyhaar/pkg/idgen"

// NewID returns a short base-36 id for history rows.
func NewID() string {
	return idgen.New()
}
