package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed opaque identifier such as "med_3f2a9c01b7d4".
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + raw[:12]
}
