package afpacket

import (
	"fmt"

	"firestige.xyz/rawsniff/internal/core"
)

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, rounded
	maxBlockSize     = 4 << 20
)

// ringSize describes a TPACKET_V3 ring.
type ringSize struct {
	frameSize int
	blockSize int
	numBlocks int
}

// recomputeSize derives ring geometry from a memory budget and snap length.
//
// PACKET_MMAP requires:
//  1. frameSize is a multiple of TPACKET_ALIGNMENT
//  2. blockSize is a multiple of pageSize
//  3. blockSize is a multiple of frameSize
//
// blockSize * numBlocks approximates bufferSizeMB.
func recomputeSize(bufferSizeMB, snapLen, pageSize int) (ringSize, error) {
	if bufferSizeMB <= 0 {
		return ringSize{}, fmt.Errorf("%w: afpacket buffer size must be positive, got %d MB", core.ErrConfigInvalid, bufferSizeMB)
	}
	if snapLen <= 0 {
		return ringSize{}, fmt.Errorf("%w: afpacket snap length must be positive, got %d", core.ErrConfigInvalid, snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return ringSize{}, fmt.Errorf("%w: page size must be a positive multiple of %d, got %d", core.ErrConfigInvalid, tpacketAlignment, pageSize)
	}

	var r ringSize
	r.frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	r.blockSize = lcm(pageSize, r.frameSize)
	if r.blockSize > maxBlockSize {
		// Page-sized frames keep the block a multiple of both.
		r.frameSize = alignUp(r.frameSize, pageSize)
		r.blockSize = max(maxBlockSize/r.frameSize, 1) * r.frameSize
	}

	r.numBlocks = max((bufferSizeMB<<20)/r.blockSize, 1)
	return r, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
