// Command sqandr is the radio side of a SqAN link. It turns hex or binary
// data from the host into I/Q symbols for the radio, and reports bytes
// decoded from the radio back to the host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/logutils"
	"github.com/jancona/sqandr/sqandr"
	"github.com/lestrrat-go/strftime"
)

var (
	txArg          *float64 = flag.Float64("tx", 0, "TX frequency in MHz (default 900)")
	rxArg          *float64 = flag.Float64("rx", 0, "RX frequency in MHz (default 900)")
	thresholdArg   *float64 = flag.Float64("threshold", 0, "Ignored, kept for compatibility")
	rxBandwidthArg *float64 = flag.Float64("rxbandwidth", 0, "RX bandwidth in MHz (default 18)")
	rxSRateArg     *float64 = flag.Float64("rxsrate", 0, "RX sample rate in MS/s (default 4)")
	txBandwidthArg *float64 = flag.Float64("txbandwidth", 0, "TX bandwidth in MHz (default 18)")
	txSRateArg     *float64 = flag.Float64("txsrate", 0, "TX sample rate in MS/s (default 4)")
	txGainArg      *float64 = flag.Float64("txgain", 0, "TX attenuation in dB, as a positive number")
	multiSampleArg *int     = flag.Int("multiSample", 1, "Samples per bit (only 1 is supported)")
	binIArg        *bool    = flag.Bool("binI", false, "Binary input from the host (implies -nonBlock)")
	binOArg        *bool    = flag.Bool("binO", false, "Binary output to the host (implies -minComms)")
	nonBlockArg    *bool    = flag.Bool("nonBlock", false, "Don't wait for host input")
	minCommsArg    *bool    = flag.Bool("minComms", false, "Only log errors")
	verboseArg     *bool    = flag.Bool("verbose", false, "Force informational logging, e.g. with -binO")
	headerArg      *bool    = flag.Bool("header", false, "Only report cycles in which the SqAN preamble was seen")
	superVerbose   *bool    = flag.Bool("superVerbose", false, "Same as -debug")
	listenArg      *bool    = flag.Bool("listen", false, "Listen only, never transmit")
	testArg        *bool    = flag.Bool("test", false, "Send a test pattern and check it comes back")

	configArg   *string = flag.String("config", "", "Config file (.yaml, .yml or .ini)")
	radioArg    *string = flag.String("radio", "", "I/Q stream: unix socket, serial device or host:port")
	baudArg     *int    = flag.Int("baud", 921600, "Baud rate when -radio is a serial device")
	hostArg     *string = flag.String("host", "stdio", "Host endpoint: stdio, pty or serial:/dev/ttyX[@baud]")
	loopbackArg *bool   = flag.Bool("loopback", false, "Use an in-memory loopback radio")
	invertArg   *bool   = flag.Bool("invert", false, "Invert the loopback signal")
	noiseArg    *int    = flag.Int("noise", 0, "Peak amplitude of loopback noise")
	paGPIOArg   *string = flag.String("pa-gpio", "", "PA enable line as chip:offset, e.g. gpiochip0:17")
	metricsArg  *string = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9117")
	logDestArg  *string = flag.String("log", "", "File for log, may contain strftime patterns (default stderr)")
	isDebugArg  *bool   = flag.Bool("debug", false, "Emit debug log messages")
	helpArg     *bool   = flag.Bool("h", false, "Print arguments")
)

func main() {
	flag.Parse()

	if *helpArg || flag.Arg(0) == "help" {
		flag.Usage()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	setupLogging(cfg.Verbose)

	err = run(cfg)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run(cfg sqandr.Config) error {
	radio, err := openRadio(cfg)
	if err != nil {
		return err
	}
	host, err := sqandr.OpenHost(*hostArg)
	if err != nil {
		radio.Shutdown()
		return err
	}
	defer host.Close()

	var in sqandr.HostReader
	var diag *sqandr.DiagnosticSource
	switch {
	case *testArg:
		diag = sqandr.NewDiagnosticSource()
		in = diag
	case cfg.BinaryIn:
		in = sqandr.NewBinaryReader(sqandr.NonBlocking(host.In), cfg.InputQuota())
	case cfg.NonBlocking:
		in = sqandr.NewHexLineReader(sqandr.NonBlocking(host.In), true)
	default:
		in = sqandr.NewHexLineReader(host.In, false)
	}
	var out sqandr.HostWriter = sqandr.NewHexWriter(host.Out)
	if cfg.BinaryOut {
		out = sqandr.NewBinaryWriter(host.Out, cfg.HeartbeatInterval)
	}

	modem, err := sqandr.NewModem(cfg, radio, in, out)
	if err != nil {
		radio.Shutdown()
		return err
	}
	if *paGPIOArg != "" {
		line, err := openPALine(*paGPIOArg)
		if err != nil {
			radio.Shutdown()
			return err
		}
		defer line.Close()
		modem.SetPAEnable(line)
	}
	if *metricsArg != "" {
		go serveMetrics(*metricsArg, modem.Metrics().Handler())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("[INFO] SqANDR running, %d bytes per transmit buffer", cfg.InputQuota())
	err = modem.Run(ctx)
	log.Printf("[INFO] Stopped after %d cycles", modem.Cycles())
	if err != nil {
		return err
	}
	if diag != nil && !diag.Passed() {
		return fmt.Errorf("diagnostic test failed, best match %d of %d bytes", diag.Best(), len(diag.Pattern))
	}
	return nil
}

func loadConfig() (sqandr.Config, error) {
	cfg := sqandr.DefaultConfig()
	if *configArg != "" {
		var err error
		cfg, err = sqandr.LoadConfig(*configArg)
		if err != nil {
			return cfg, err
		}
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// frequencies at or below 0.1 are ignored
	floatArgs := []struct {
		name string
		val  float64
		dst  *float64
	}{
		{"rx", *rxArg, &cfg.RX.LOMHz},
		{"tx", *txArg, &cfg.TX.LOMHz},
		{"rxbandwidth", *rxBandwidthArg, &cfg.RX.BandwidthMHz},
		{"rxsrate", *rxSRateArg, &cfg.RX.SampleRateMSps},
		{"txbandwidth", *txBandwidthArg, &cfg.TX.BandwidthMHz},
		{"txsrate", *txSRateArg, &cfg.TX.SampleRateMSps},
		{"txgain", *txGainArg, &cfg.TX.GainDB},
	}
	for _, a := range floatArgs {
		if set[a.name] && a.val > 0.1 {
			*a.dst = a.val
		}
	}
	if set["multiSample"] {
		cfg.SamplesPerBit = *multiSampleArg
	}
	if set["threshold"] {
		log.Printf("[INFO] -threshold %v is ignored", *thresholdArg)
	}
	if *binIArg {
		cfg.BinaryIn = true
		cfg.NonBlocking = true
	}
	if *nonBlockArg {
		cfg.NonBlocking = true
	}
	if *binOArg {
		cfg.BinaryOut = true
		cfg.Verbose = false
	}
	if *minCommsArg {
		cfg.Verbose = false
	}
	if *verboseArg {
		cfg.Verbose = true
	}
	if *headerArg {
		cfg.RequirePreamble = true
	}
	if *listenArg {
		cfg.ListenOnly = true
	}
	return cfg, cfg.Validate()
}

func openRadio(cfg sqandr.Config) (sqandr.RadioFrontEnd, error) {
	if *radioArg != "" && !*loopbackArg {
		return sqandr.OpenIQStream(*radioArg, *baudArg, cfg.RXBufferSamples, cfg.TXBufferSamples)
	}
	if !*loopbackArg {
		return nil, errors.New("one of -radio or -loopback is required")
	}
	log.Print("[INFO] Using loopback radio")
	return sqandr.NewLoopback(cfg.RXBufferSamples, cfg.TXBufferSamples, int16(*noiseArg), *invertArg), nil
}

func openPALine(arg string) (sqandr.Line, error) {
	chip, offsetStr, ok := strings.Cut(arg, ":")
	if !ok {
		return nil, fmt.Errorf("bad -pa-gpio %q, want chip:offset", arg)
	}
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		return nil, fmt.Errorf("bad -pa-gpio offset %q: %w", offsetStr, err)
	}
	return sqandr.OpenKeyLine(chip, offset)
}

func serveMetrics(addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	log.Printf("[INFO] Serving metrics on %s", addr)
	err := http.ListenAndServe(addr, mux)
	if err != nil {
		log.Printf("[ERROR] Metrics server: %v", err)
	}
}

func setupLogging(verbose bool) {
	minLogLevel := "INFO"
	if !verbose {
		minLogLevel = "ERROR"
	}
	if *isDebugArg || *superVerbose {
		minLogLevel = "DEBUG"
	}
	var logWriter io.Writer = os.Stderr
	if *logDestArg != "" {
		path, err := strftime.Format(*logDestArg, time.Now())
		if err != nil {
			log.Fatalf("Error in log path pattern: %v", err)
		}
		logWriter, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0644)
		if err != nil {
			log.Fatalf("Error opening log file, exiting: %v", err)
		}
	}

	filter := &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "ERROR"},
		MinLevel: logutils.LogLevel(minLogLevel),
		Writer:   logWriter,
	}
	log.SetOutput(filter)
	log.Print("[DEBUG] Debug is on")
}
