//go:build linux

package tap

import (
	"fmt"

	"github.com/songgao/water"

	"firestige.xyz/rawsniff/internal/log"
)

// Open attaches to the TAP device name, creating it if needed.
func Open(name string) (*Source, error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = name

	ifce, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open tap %s: %w", name, err)
	}
	log.GetLogger().WithField("interface", ifce.Name()).Info("tap device opened")
	return newSource(ifce, ifce.Name()), nil
}
