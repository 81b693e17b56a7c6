// Package source opens the frame receiver selected by configuration.
package source

import (
	"fmt"

	"firestige.xyz/rawsniff/internal/capture"
	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/source/afpacket"
	"firestige.xyz/rawsniff/internal/source/file"
	"firestige.xyz/rawsniff/internal/source/socket"
	"firestige.xyz/rawsniff/internal/source/tap"
)

// Source types.
const (
	TypeSocket   = "socket"
	TypeAFPacket = "afpacket"
	TypeTap      = "tap"
	TypeFile     = "file"
)

// Open opens the receiver named by cfg.Source.
func Open(cfg config.CaptureConfig) (capture.Receiver, error) {
	switch cfg.Source {
	case "", TypeSocket:
		s, err := socket.Open(socket.Options{
			Interface:   cfg.Interface,
			Protocol:    cfg.Protocol,
			Promiscuous: cfg.Promiscuous,
			ReadTimeout: cfg.ReadTimeoutDuration(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case TypeAFPacket:
		s, err := afpacket.Open(afpacket.Options{
			Interface:    cfg.Interface,
			BufferSizeMB: cfg.AFPacket.BufferSizeMB,
			SnapLen:      cfg.AFPacket.SnapLen,
			ReadTimeout:  cfg.ReadTimeoutDuration(),
			FanoutID:     cfg.AFPacket.FanoutID,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case TypeTap:
		s, err := tap.Open(cfg.Interface)
		if err != nil {
			return nil, err
		}
		return s, nil

	case TypeFile:
		s, err := file.Open(cfg.File)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown source %q", core.ErrConfigInvalid, cfg.Source)
	}
}
