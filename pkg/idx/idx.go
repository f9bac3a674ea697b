// Package idx generates sortable request identifiers.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

const Zero ID = ""

// MaxRequestIDLen caps client supplied request ids before they reach logs.
const MaxRequestIDLen = 64

var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	once    sync.Once
	entropy *ulid.MonotonicEntropy
)

// New returns a ULID for the current time. IDs from one process sort in
// creation order.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt generates an ID at t.
func NewAt(t time.Time) ID {
	once.Do(func() { entropy = ulid.Monotonic(rand.Reader, 0) })

	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates a ULID string.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// RequestID keeps a caller's X-Request-ID when it is short and printable,
// and otherwise mints a new one.
func RequestID(header string) string {
	if header == "" || len(header) > MaxRequestIDLen {
		return New().String()
	}
	for _, r := range header {
		if r < 0x21 || r > 0x7e {
			return New().String()
		}
	}
	return header
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time extracts the embedded timestamp, or the zero time for invalid ids.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
