// Package xid builds prefixed record identifiers. The UUIDv7 body keeps ids
// roughly ordered by creation time.
package xid

import (
	"strings"

	"github.com/google/uuid"
)

func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + strings.ReplaceAll(id.String(), "-", "")
}
