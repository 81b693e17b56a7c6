// Package file replays frames from a pcap or pcapng capture file.
package file

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/log"
)

// pcapng section header block type
const ngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source reads frames from a capture file. The end of the file is reported
// as io.EOF.
type Source struct {
	path   string
	f      *os.File
	reader packetReader
	empty  uint64

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// Open opens path and reads its file header. Only Ethernet captures are
// accepted.
func Open(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file path is required", core.ErrConfigInvalid)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}

	reader, err := newReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap file %s: %w", path, err)
	}
	if lt := reader.LinkType(); lt != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("%w: pcap file %s has link type %s, want Ethernet", core.ErrConfigInvalid, path, lt)
	}

	log.GetLogger().WithField("path", path).Info("pcap file opened")
	return &Source{path: path, f: f, reader: reader}, nil
}

func newReader(r *bufio.Reader) (packetReader, error) {
	magic, err := r.Peek(4)
	if err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(magic) == ngMagic {
		return pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(r)
}

// Receive copies the next frame into buf. It is owned by one goroutine.
func (s *Source) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.closed {
		return 0, core.ErrSocketClosed
	}
	for {
		data, _, err := s.reader.ReadPacketData()
		if err != nil {
			return 0, err
		}
		// A zero length would read as a closed handle; only io.EOF ends a replay
		if len(data) == 0 {
			s.empty++
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			continue
		}
		return copy(buf, data), nil
	}
}

// Skipped returns the number of zero-length records skipped so far.
func (s *Source) Skipped() uint64 {
	return s.empty
}

// Close closes the file. It is safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.empty > 0 {
			log.GetLogger().WithFields(map[string]interface{}{"path": s.path, "records": s.empty}).Warn("skipped empty pcap records")
		}
		s.closed = true
		s.closeErr = s.f.Close()
	})
	return s.closeErr
}
