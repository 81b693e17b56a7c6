package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/rawsniff/internal/capture"
	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
	"firestige.xyz/rawsniff/internal/core/decoder"
	"firestige.xyz/rawsniff/internal/filter"
	"firestige.xyz/rawsniff/internal/log"
	"firestige.xyz/rawsniff/internal/metrics"
	"firestige.xyz/rawsniff/internal/sink"
	_ "firestige.xyz/rawsniff/internal/sink/all"
	"firestige.xyz/rawsniff/internal/source"
)

// opener opens the receiver for a capture config.
type opener func(cfg config.CaptureConfig) (capture.Receiver, error)

// captureFlags override config values when set.
type captureFlags struct {
	iface     string
	source    string
	file      string
	protocol  string
	promisc   bool
	count     uint64
	format    string
	workers   int
	transient []string

	transports []string
	ports      []int
	hosts      []string
}

func newCaptureCmd() *cobra.Command {
	return captureCommand(&captureFlags{})
}

func captureCommand(f *captureFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture frames and print the parsed headers",
		Long: `Open the configured receiver and run the capture loop until interrupted,
the frame count is reached, or the receiver fails.

Examples:
  rawsniff capture
  rawsniff capture -i eth0 --promisc -n 100
  rawsniff capture --source afpacket -i eth0 --workers 4 --format json
  rawsniff capture --source file -r trace.pcap --format summary
  rawsniff capture -i eth0 --transport udp --port 53 --host 10.0.0.0/8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCapture(ctx, cfg, source.Open, cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.iface, "interface", "i", "", "interface to capture on")
	fl.StringVar(&f.source, "source", "", "receiver: socket, afpacket, tap or file")
	fl.StringVarP(&f.file, "file", "r", "", "capture file to replay (implies --source file)")
	fl.StringVar(&f.protocol, "protocol", "", "socket protocol: all, ip or ipv6")
	fl.BoolVar(&f.promisc, "promisc", false, "enable promiscuous mode")
	fl.Uint64VarP(&f.count, "count", "n", 0, "stop after this many frames")
	fl.StringVar(&f.format, "format", "", "console format: text, json or summary")
	fl.IntVar(&f.workers, "workers", 0, "parse on this many worker goroutines")
	fl.StringSliceVar(&f.transient, "transient", nil, "receive errors to survive, e.g. EINTR,ENOBUFS")
	fl.StringSliceVar(&f.transports, "transport", nil, "keep only these transports: tcp, udp, other")
	fl.IntSliceVar(&f.ports, "port", nil, "keep only packets with one of these source or destination ports")
	fl.StringSliceVar(&f.hosts, "host", nil, "keep only packets from or to these addresses or CIDRs")
	return cmd
}

// apply copies changed flags into cfg and revalidates it.
func (f *captureFlags) apply(cmd *cobra.Command, cfg *config.GlobalConfig) error {
	fl := cmd.Flags()
	c := &cfg.Capture
	if fl.Changed("interface") {
		c.Interface = f.iface
	}
	if fl.Changed("file") {
		c.File = f.file
		c.Source = source.TypeFile
	}
	if fl.Changed("source") {
		c.Source = f.source
	}
	if fl.Changed("protocol") {
		c.Protocol = f.protocol
	}
	if fl.Changed("promisc") {
		c.Promiscuous = f.promisc
	}
	if fl.Changed("count") {
		c.Limit = f.count
	}
	if fl.Changed("workers") {
		c.Workers = f.workers
		c.QueueSize = 0
	}
	if fl.Changed("transient") {
		c.ErrorPolicy.Transient = f.transient
	}
	if fl.Changed("transport") {
		cfg.Filter.Transports = f.transports
	}
	if fl.Changed("port") {
		cfg.Filter.Ports = f.ports
	}
	if fl.Changed("host") {
		cfg.Filter.Hosts = f.hosts
	}
	if fl.Changed("format") {
		setConsoleFormat(cfg, f.format)
	}
	return cfg.ValidateAndApplyDefaults()
}

// setConsoleFormat sets the format of the console sink, adding one if
// none is configured.
func setConsoleFormat(cfg *config.GlobalConfig, format string) {
	for i := range cfg.Sinks {
		if cfg.Sinks[i].Name == "console" {
			if cfg.Sinks[i].Config == nil {
				cfg.Sinks[i].Config = map[string]any{}
			}
			cfg.Sinks[i].Config["format"] = format
			return
		}
	}
	cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Name: "console", Config: map[string]any{"format": format}})
}

// runCapture wires logging, metrics, sinks and the receiver, runs the loop
// and writes the statistics to statsOut.
func runCapture(ctx context.Context, cfg *config.GlobalConfig, open opener, statsOut io.Writer) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Close()
	logger := log.GetLogger()

	policy, err := capture.NewErrorPolicy(cfg.Capture.ErrorPolicy.Transient, cfg.Capture.ErrorPolicy.MaxConsecutive)
	if err != nil {
		return err
	}

	filters, err := filter.FromConfig(cfg.Filter)
	if err != nil {
		return err
	}

	s, err := sink.Build(cfg.Sinks)
	if err != nil {
		return fmt.Errorf("failed to build sinks: %w", err)
	}
	if len(filters) > 0 {
		s = filter.NewSink(s, filters...)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close sinks")
		}
	}()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(stopCtx)
		}()
	}

	recv, err := open(cfg.Capture)
	if err != nil {
		if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
			return fmt.Errorf("%w (raw capture needs CAP_NET_RAW, try running as root)", err)
		}
		return fmt.Errorf("failed to open %s source: %w", cfg.Capture.Source, err)
	}

	loop := capture.New(recv, s, capture.Options{
		Name: cfg.Capture.Source,
		Decoder: decoder.NewStandardDecoder(decoder.Config{
			SkipVLAN:    cfg.Decoder.SkipVLAN,
			SkipIPv6Ext: cfg.Decoder.SkipIPv6Ext,
		}),
		Policy:    policy,
		Workers:   cfg.Capture.Workers,
		QueueSize: cfg.Capture.QueueSize,
		Limit:     cfg.Capture.Limit,
	})

	start := time.Now()
	err = loop.Run(ctx)
	printStats(statsOut, loop.Stats(), time.Since(start))

	// A replayed file ends by running out of frames.
	if cfg.Capture.Source == source.TypeFile && errors.Is(err, core.ErrSocketClosed) {
		return nil
	}
	return err
}

func printStats(w io.Writer, st capture.Stats, elapsed time.Duration) {
	fmt.Fprintf(w, "%d frames received, %d parsed, %d parse errors, %d transient errors, %d bytes in %s\n",
		st.Received, st.Parsed, st.ParseErrors, st.TransientErrors, st.Bytes, elapsed.Round(time.Millisecond))
}
