package capture

import (
	"fmt"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"firestige.xyz/rawsniff/internal/core"
)

// ErrorPolicy decides which receive errors the loop survives. The zero value
// treats every receive error as fatal.
type ErrorPolicy struct {
	transient map[syscall.Errno]bool

	// MaxConsecutive bounds back-to-back transient errors; the next one is
	// fatal. Zero means unbounded.
	MaxConsecutive int
}

// NewErrorPolicy builds a policy from errno names such as "EINTR".
func NewErrorPolicy(names []string, maxConsecutive int) (ErrorPolicy, error) {
	p := ErrorPolicy{MaxConsecutive: maxConsecutive}
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		errno, ok := errnoByName()[name]
		if !ok {
			return ErrorPolicy{}, fmt.Errorf("%w: unknown errno name %q", core.ErrConfigInvalid, name)
		}
		p = p.WithTransient(errno)
	}
	return p, nil
}

// WithTransient returns a copy of p that also survives the given codes.
func (p ErrorPolicy) WithTransient(codes ...syscall.Errno) ErrorPolicy {
	m := make(map[syscall.Errno]bool, len(p.transient)+len(codes))
	for code := range p.transient {
		m[code] = true
	}
	for _, code := range codes {
		m[code] = true
	}
	p.transient = m
	return p
}

// IsTransient reports whether code is configured as survivable.
func (p ErrorPolicy) IsTransient(code syscall.Errno) bool {
	return p.transient[code]
}

// allows reports whether the loop may retry after the given number of
// consecutive transient errors, this one included.
func (p ErrorPolicy) allows(code syscall.Errno, consecutive int) bool {
	if !p.IsTransient(code) {
		return false
	}
	return p.MaxConsecutive == 0 || consecutive <= p.MaxConsecutive
}

// errnoName returns the symbolic name of code, e.g. "EINTR".
func errnoName(code syscall.Errno) string {
	if name := unix.ErrnoName(code); name != "" {
		return name
	}
	return fmt.Sprintf("errno%d", int(code))
}

// maxErrno bounds the scan for errno names; Linux stops at 133.
const maxErrno = 4096

// errnoByName maps the platform's errno names to their codes.
var errnoByName = sync.OnceValue(func() map[string]syscall.Errno {
	m := make(map[string]syscall.Errno)
	for code := syscall.Errno(1); code < maxErrno; code++ {
		if name := unix.ErrnoName(code); name != "" {
			m[name] = code
		}
	}
	// Aliases the name table does not carry
	m["EWOULDBLOCK"] = unix.EWOULDBLOCK
	return m
})
