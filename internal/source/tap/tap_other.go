//go:build !linux

package tap

import (
	"fmt"

	"firestige.xyz/rawsniff/internal/core"
)

// Open always fails with core.ErrUnsupported.
func Open(name string) (*Source, error) {
	return nil, fmt.Errorf("%w: tap %s", core.ErrUnsupported, name)
}
