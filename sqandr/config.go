package sqandr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLOMHz           = 900.0
	DefaultBandwidthMHz    = 18.0
	DefaultSampleRateMSps  = 4.0
	DefaultRXPort          = "A_BALANCED"
	DefaultTXPort          = "A"
	DefaultRXBufferSamples = 19 * 1400
	DefaultTXBufferSamples = 19 * 700
	DefaultSamplesPerBit   = 1
)

// StreamSettings are the user facing settings of one direction, in MHz and
// MS/s.
type StreamSettings struct {
	LOMHz          float64 `yaml:"lo_mhz" ini:"lo_mhz"`
	BandwidthMHz   float64 `yaml:"bandwidth_mhz" ini:"bandwidth_mhz"`
	SampleRateMSps float64 `yaml:"sample_rate_msps" ini:"sample_rate_msps"`
	Port           string  `yaml:"port" ini:"port"`
	// GainDB is an attenuation, given as a positive number.
	GainDB float64 `yaml:"gain_db" ini:"gain_db"`
}

// StreamConfig converts the settings to what a RadioFrontEnd takes.
func (s StreamSettings) StreamConfig() StreamConfig {
	return StreamConfig{
		LOHz:         MHz(s.LOMHz),
		BandwidthHz:  MHz(s.BandwidthMHz),
		SampleRateHz: MHz(s.SampleRateMSps),
		Port:         s.Port,
		GainDB:       -s.GainDB,
	}
}

// Config holds everything needed to run a modem.
type Config struct {
	RX StreamSettings `yaml:"rx" ini:"rx"`
	TX StreamSettings `yaml:"tx" ini:"tx"`

	RXBufferSamples   int `yaml:"rx_buffer_samples" ini:"rx_buffer_samples"`
	TXBufferSamples   int `yaml:"tx_buffer_samples" ini:"tx_buffer_samples"`
	Repetitions       int `yaml:"repetitions" ini:"repetitions"`
	GuardSymbols      int `yaml:"guard_symbols" ini:"guard_symbols"`
	CycleCapacity     int `yaml:"cycle_capacity" ini:"cycle_capacity"`
	BinaryQuota       int `yaml:"binary_quota" ini:"binary_quota"`
	HeartbeatInterval int `yaml:"heartbeat_interval" ini:"heartbeat_interval"`
	SamplesPerBit     int `yaml:"samples_per_bit" ini:"samples_per_bit"`

	RequirePreamble bool `yaml:"require_preamble" ini:"require_preamble"`
	ListenOnly      bool `yaml:"listen_only" ini:"listen_only"`
	BinaryIn        bool `yaml:"binary_in" ini:"binary_in"`
	BinaryOut       bool `yaml:"binary_out" ini:"binary_out"`
	NonBlocking     bool `yaml:"non_blocking" ini:"non_blocking"`
	Verbose         bool `yaml:"verbose" ini:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		RX: StreamSettings{
			LOMHz:          DefaultLOMHz,
			BandwidthMHz:   DefaultBandwidthMHz,
			SampleRateMSps: DefaultSampleRateMSps,
			Port:           DefaultRXPort,
		},
		TX: StreamSettings{
			LOMHz:          DefaultLOMHz,
			BandwidthMHz:   DefaultBandwidthMHz,
			SampleRateMSps: DefaultSampleRateMSps,
			Port:           DefaultTXPort,
		},
		RXBufferSamples:   DefaultRXBufferSamples,
		TXBufferSamples:   DefaultTXBufferSamples,
		Repetitions:       DefaultRepetitions,
		GuardSymbols:      DefaultGuardSymbols,
		CycleCapacity:     DefaultCycleCapacity,
		BinaryQuota:       DefaultBinaryQuota,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SamplesPerBit:     DefaultSamplesPerBit,
		Verbose:           true,
	}
}

// LoadConfig reads path over the defaults. The format is chosen by extension:
// .yaml or .yml for YAML, .ini for INI.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".ini":
		f, err := ini.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		if err := f.MapTo(&cfg); err != nil {
			return cfg, fmt.Errorf("failed to map config file %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unknown config file type %q", filepath.Ext(path))
	}
	return cfg, nil
}

// Encoder returns an encoder with the configured framing.
func (c Config) Encoder() *Encoder {
	e := NewEncoder()
	e.Repetitions = c.Repetitions
	e.GuardSymbols = c.GuardSymbols
	return e
}

// InputQuota is the most bytes a binary host read may return in one cycle.
func (c Config) InputQuota() int {
	return min(c.BinaryQuota, c.Encoder().MaxPayload(c.TXBufferSamples))
}

func (c Config) Validate() error {
	var errs []error
	if c.RXBufferSamples <= 0 {
		errs = append(errs, fmt.Errorf("rx buffer must hold at least one sample, got %d", c.RXBufferSamples))
	}
	if c.TXBufferSamples <= 0 {
		errs = append(errs, fmt.Errorf("tx buffer must hold at least one sample, got %d", c.TXBufferSamples))
	}
	if c.Repetitions <= 0 {
		errs = append(errs, fmt.Errorf("repetitions must be positive, got %d", c.Repetitions))
	}
	if c.GuardSymbols < 0 || c.GuardSymbols >= c.TXBufferSamples {
		errs = append(errs, fmt.Errorf("guard of %d symbols does not fit a %d sample tx buffer", c.GuardSymbols, c.TXBufferSamples))
	}
	if c.CycleCapacity <= 0 {
		errs = append(errs, fmt.Errorf("cycle capacity must be positive, got %d", c.CycleCapacity))
	}
	if c.BinaryQuota <= 0 {
		errs = append(errs, fmt.Errorf("binary quota must be positive, got %d", c.BinaryQuota))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat interval must be positive, got %d", c.HeartbeatInterval))
	}
	if c.SamplesPerBit != 1 {
		errs = append(errs, fmt.Errorf("%d samples per bit: %w", c.SamplesPerBit, ErrUnsupported))
	}
	for _, s := range []StreamSettings{c.RX, c.TX} {
		if s.LOMHz <= 0 || s.BandwidthMHz <= 0 || s.SampleRateMSps <= 0 {
			errs = append(errs, fmt.Errorf("stream settings must be positive: %+v", s))
		}
	}
	return errors.Join(errs...)
}
