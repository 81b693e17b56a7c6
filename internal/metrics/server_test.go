package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesMetrics(t *testing.T) {
	FramesTotal.WithLabelValues("test").Add(3)

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `rawsniff_capture_frames_total{source="test"}`))
}

func TestServerStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "/m").Stop(context.Background()))
}

func TestServerListenError(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Error(t, NewServer(s.Addr(), "").Start(context.Background()))
}
