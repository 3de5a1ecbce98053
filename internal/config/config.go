// Package config loads the esdemux CLI configuration. Values come from an
// optional YAML file, then ESDEMUX_* environment variables, then flags
// applied by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete CLI configuration.
type Config struct {
	// Input is a file path, file:// URL, srt:// URL or quic:// URL.
	Input     string `yaml:"input"`
	OutputDir string `yaml:"output_dir"`
	// Seek starts demuxing at this offset from the start of the input.
	Seek time.Duration `yaml:"seek"`
	// ProbeSize bounds how many bytes are read to discover the tracks.
	ProbeSize int64 `yaml:"probe_size"`
	// Program selects an MPEG-TS program number; 0 picks the first.
	Program       uint16        `yaml:"program"`
	StatsInterval time.Duration `yaml:"stats_interval"`
	LogLevel      string        `yaml:"log_level"`
	SRT           SRTConfig     `yaml:"srt"`
	QUIC          QUICConfig    `yaml:"quic"`
}

// SRTConfig holds SRT input settings.
type SRTConfig struct {
	StreamID    string        `yaml:"stream_id"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// QUICConfig holds QUIC input settings.
type QUICConfig struct {
	// Hosts are extra certificate names besides localhost.
	Hosts []string `yaml:"hosts"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		OutputDir:     ".",
		ProbeSize:     4 << 20,
		StatsInterval: 5 * time.Second,
		LogLevel:      "info",
		SRT:           SRTConfig{DialTimeout: 10 * time.Second},
	}
}

// Load reads path, if not empty, over the defaults and then applies
// environment overrides read through lookup (os.LookupEnv when nil).
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ESDEMUX_INPUT"); ok {
		c.Input = v
	}
	if v, ok := lookup("ESDEMUX_OUTPUT_DIR"); ok {
		c.OutputDir = v
	}
	if v, ok := lookup("ESDEMUX_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("ESDEMUX_SRT_STREAM_ID"); ok {
		c.SRT.StreamID = v
	}
	if v, ok := lookup("ESDEMUX_SEEK"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: ESDEMUX_SEEK: %w", err)
		}
		c.Seek = d
	}
	if v, ok := lookup("ESDEMUX_STATS_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: ESDEMUX_STATS_INTERVAL: %w", err)
		}
		c.StatsInterval = d
	}
	if v, ok := lookup("ESDEMUX_PROBE_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: ESDEMUX_PROBE_SIZE: %w", err)
		}
		c.ProbeSize = n
	}
	if v, ok := lookup("ESDEMUX_PROGRAM"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("config: ESDEMUX_PROGRAM: %w", err)
		}
		c.Program = uint16(n)
	}
	if _, ok := lookup("DEBUG"); ok {
		c.LogLevel = "debug"
	}
	return nil
}

// Validate checks the configuration after all overrides are applied.
func (c *Config) Validate() error {
	var errs []error
	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	} else if _, err := ParseInput(c.Input); err != nil {
		errs = append(errs, err)
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.Seek < 0 {
		errs = append(errs, fmt.Errorf("seek %s is negative", c.Seek))
	}
	if c.ProbeSize <= 0 {
		errs = append(errs, fmt.Errorf("probe_size %d must be positive", c.ProbeSize))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// InputKind tells how an input is opened.
type InputKind int

// Input kinds.
const (
	InputFile InputKind = iota
	InputSRTCaller
	InputSRTListener
	InputQUIC
)

func (k InputKind) String() string {
	switch k {
	case InputSRTCaller:
		return "srt-caller"
	case InputSRTListener:
		return "srt-listener"
	case InputQUIC:
		return "quic"
	default:
		return "file"
	}
}

// Input is a parsed input location.
type Input struct {
	Kind InputKind
	// Path for files, host:port for network inputs.
	Address  string
	StreamID string
}

// ParseInput interprets an input string. srt://host:port dials a listener,
// srt://:port or srt://host:port?mode=listener waits for a publisher, and
// quic://host:port accepts a QUIC push. Anything else is a file path.
func ParseInput(s string) (Input, error) {
	scheme, _, ok := strings.Cut(s, "://")
	if !ok {
		return Input{Kind: InputFile, Address: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Input{}, fmt.Errorf("input %q: %w", s, err)
	}
	switch scheme {
	case "file":
		return Input{Kind: InputFile, Address: u.Host + u.Path}, nil
	case "srt":
		if u.Port() == "" {
			return Input{}, fmt.Errorf("input %q: port is required", s)
		}
		in := Input{Kind: InputSRTCaller, Address: u.Host, StreamID: u.Query().Get("streamid")}
		if u.Hostname() == "" || u.Query().Get("mode") == "listener" {
			in.Kind = InputSRTListener
		}
		return in, nil
	case "quic":
		if u.Port() == "" {
			return Input{}, fmt.Errorf("input %q: port is required", s)
		}
		return Input{Kind: InputQUIC, Address: u.Host}, nil
	default:
		return Input{}, fmt.Errorf("input %q: unsupported scheme %q", s, scheme)
	}
}
