package reqid

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
)

// Header carries the request ID in both directions.
const Header = "X-Request-Id"

const maxInboundLen = 128

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := strconv.FormatUint(rand.Uint64(), 16)
	return context.WithValue(parent, key{}, id), id
}

// WithID returns a copy of parent carrying id.
func WithID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, key{}, id)
}

// FromRequest stores the inbound X-Request-Id of r when it is usable, or a
// fresh ID otherwise.
func FromRequest(parent context.Context, r *http.Request) (context.Context, string) {
	if id := r.Header.Get(Header); validInbound(id) {
		return WithID(parent, id), id
	}
	return NewContext(parent)
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(key{})
	id, ok := v.(string)
	return id, ok
}

func validInbound(id string) bool {
	if id == "" || len(id) > maxInboundLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
