// Package config loads the command-line downloader's settings from JSON.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fortio.org/log"

	"github.com/bentsolheim/httpsink/pkg/batch"
	"github.com/bentsolheim/httpsink/pkg/body"
	"github.com/bentsolheim/httpsink/pkg/client"
	"github.com/bentsolheim/httpsink/pkg/constants"
	"github.com/bentsolheim/httpsink/pkg/errors"
	"github.com/bentsolheim/httpsink/pkg/request"
	"github.com/bentsolheim/httpsink/pkg/tlsconfig"
	"github.com/bentsolheim/httpsink/pkg/transport"
)

// Settings holds all configuration options. Timeouts are in seconds.
type Settings struct {
	// Target defaults for bare paths
	Scheme    string `json:"scheme"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	ConnectIP string `json:"connect_ip"`

	// Files to fetch: absolute URLs or paths on Host
	Paths     []string `json:"paths"`
	OutputDir string   `json:"output_dir"`

	// Transfer settings
	KeepAlive          bool   `json:"keep_alive"`
	CopyMode           string `json:"copy_mode"` // length, available
	MaxLineLength      int    `json:"max_line_length"`
	MaxConcurrentHosts int    `json:"max_concurrent_hosts"`

	// Timeouts
	ConnTimeout  float64 `json:"conn_timeout"`
	DNSTimeout   float64 `json:"dns_timeout"`
	ReadTimeout  float64 `json:"read_timeout"`
	WriteTimeout float64 `json:"write_timeout"`
	PollInterval float64 `json:"poll_interval"`

	// TLS settings
	InsecureTLS bool     `json:"insecure_tls"`
	TLSProfile  string   `json:"tls_profile"` // modern, secure, compatible
	CACertFiles []string `json:"ca_cert_files"`

	LogLevel string `json:"log_level"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		Scheme:    "http",
		Port:      constants.DefaultHTTPPort,
		OutputDir: ".",

		KeepAlive:          true,
		CopyMode:           body.ModeLength.String(),
		MaxLineLength:      constants.MaxLineLength,
		MaxConcurrentHosts: constants.DefaultMaxConcurrentHosts,

		ConnTimeout:  constants.DefaultConnTimeout.Seconds(),
		DNSTimeout:   constants.DefaultDNSTimeout.Seconds(),
		ReadTimeout:  constants.DefaultReadTimeout.Seconds(),
		WriteTimeout: constants.DefaultWriteTimeout.Seconds(),
		PollInterval: transport.DefaultPollInterval.Seconds(),

		TLSProfile: tlsconfig.ProfileSecure.Name,

		LogLevel: "info",
	}
}

// Load reads settings from a JSON file. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.LogVf("config: %s not found, using defaults", path)
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, errors.NewValidationError("parsing " + path + ": " + err.Error())
	}
	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports the first invalid setting.
func (s *Settings) Validate() error {
	switch strings.ToLower(s.Scheme) {
	case "http", "https":
	default:
		return errors.NewValidationError("scheme must be http or https, got " + strconv.Quote(s.Scheme))
	}
	if s.Port < 1 || s.Port > 65535 {
		return errors.NewValidationError("port out of range: " + strconv.Itoa(s.Port))
	}
	if _, err := body.ParseMode(s.CopyMode); err != nil {
		return err
	}
	if _, err := tlsconfig.ParseProfile(s.TLSProfile); err != nil {
		return err
	}
	if s.MaxConcurrentHosts < 1 {
		return errors.NewValidationError("max_concurrent_hosts must be at least 1")
	}
	if s.MaxLineLength < 0 {
		return errors.NewValidationError("max_line_length cannot be negative")
	}
	for name, v := range map[string]float64{
		"conn_timeout":  s.ConnTimeout,
		"dns_timeout":   s.DNSTimeout,
		"read_timeout":  s.ReadTimeout,
		"write_timeout": s.WriteTimeout,
		"poll_interval": s.PollInterval,
	} {
		if v < 0 {
			return errors.NewValidationError(name + " cannot be negative")
		}
	}
	if s.LogLevel != "" {
		if _, err := log.ValidateLevel(s.LogLevel); err != nil {
			return errors.NewValidationError("log_level: " + err.Error())
		}
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// ToTransportConfig converts settings to a transport configuration, reading
// any CA certificate files.
func (s *Settings) ToTransportConfig() (transport.Config, error) {
	profile, err := tlsconfig.ParseProfile(s.TLSProfile)
	if err != nil {
		return transport.Config{}, err
	}

	var cas [][]byte
	for _, f := range s.CACertFiles {
		pem, err := os.ReadFile(f)
		if err != nil {
			return transport.Config{}, errors.NewValidationError("reading CA file " + f + ": " + err.Error())
		}
		cas = append(cas, pem)
	}

	return transport.Config{
		Scheme:        strings.ToLower(s.Scheme),
		ConnectIP:     s.ConnectIP,
		InsecureTLS:   s.InsecureTLS,
		TLSProfile:    profile,
		CustomCACerts: cas,
		ConnTimeout:   seconds(s.ConnTimeout),
		DNSTimeout:    seconds(s.DNSTimeout),
		ReadTimeout:   seconds(s.ReadTimeout),
		WriteTimeout:  seconds(s.WriteTimeout),
		PollInterval:  seconds(s.PollInterval),
	}, nil
}

// ToClientOptions converts settings to client options.
func (s *Settings) ToClientOptions() (client.Options, error) {
	mode, err := body.ParseMode(s.CopyMode)
	if err != nil {
		return client.Options{}, err
	}
	opts := client.DefaultOptions()
	opts.CopyMode = mode
	if s.MaxLineLength > 0 {
		opts.MaxLineLength = s.MaxLineLength
	}
	return opts, nil
}

// ToBatchOptions converts settings to batch options.
func (s *Settings) ToBatchOptions() (batch.Options, error) {
	tc, err := s.ToTransportConfig()
	if err != nil {
		return batch.Options{}, err
	}
	co, err := s.ToClientOptions()
	if err != nil {
		return batch.Options{}, err
	}
	return batch.Options{
		Transport:          tc,
		Client:             co,
		MaxConcurrentHosts: s.MaxConcurrentHosts,
		KeepAlive:          s.KeepAlive,
	}, nil
}

// Jobs turns Paths into batch jobs. Absolute URLs carry their own scheme,
// host and port; bare paths use the configured ones. Each file lands in
// OutputDir under the last segment of its path.
func (s *Settings) Jobs() ([]batch.Job, error) {
	jobs := make([]batch.Job, 0, len(s.Paths))
	for _, p := range s.Paths {
		var t request.Target
		if strings.Contains(p, "://") {
			var err error
			if t, err = request.ParseURL(p); err != nil {
				return nil, err
			}
		} else {
			if s.Host == "" {
				return nil, errors.NewValidationError("host is required for path " + strconv.Quote(p))
			}
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			t = request.Target{Scheme: strings.ToLower(s.Scheme), Host: s.Host, Port: uint16(s.Port), Path: p}
		}
		jobs = append(jobs, batch.Job{
			Scheme: t.Scheme,
			Host:   t.Host,
			Port:   t.Port,
			Path:   t.Path,
			Dest:   filepath.Join(s.OutputDir, batch.FileName(t.Path)),
		})
	}
	return jobs, nil
}
