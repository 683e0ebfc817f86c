// Package identity provides client and agent identifier primitives.
package identity

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// NewClientID returns a fresh random client id.
func NewClientID() string {
	return uuid.NewString()
}

// ValidID reports whether id is safe to use as a session key, a lock key and
// a file name component.
func ValidID(id string) bool {
	return idPattern.MatchString(id) && !strings.Contains(id, "..")
}

// IPFromRequest returns a normalized remote IP for request logging.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
