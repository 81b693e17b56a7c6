package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
)

func TestOpenUnknown(t *testing.T) {
	r, err := Open(config.CaptureConfig{Source: "pcap"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Nil(t, r)
}

func TestOpenFailureReturnsNilReceiver(t *testing.T) {
	r, err := Open(config.CaptureConfig{Source: TypeFile, File: filepath.Join(t.TempDir(), "missing.pcap")})
	assert.Error(t, err)
	assert.Nil(t, r)

	r, err = Open(config.CaptureConfig{Source: TypeSocket, Protocol: "arp"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Nil(t, r)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(core.MaxFrameSize, layers.LinkTypeEthernet))
	frame := make([]byte, 60)
	require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: 60, Length: 60}, frame))
	require.NoError(t, f.Close())

	r, err := Open(config.CaptureConfig{Source: TypeFile, File: path})
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, core.MaxFrameSize)
	n, err := r.Receive(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	_, err = r.Receive(context.Background(), buf)
	assert.ErrorIs(t, err, io.EOF)
}
