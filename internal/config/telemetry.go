// Package config loads the ingestor's JSON configuration and lookup tables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
// This is the single source of truth for all default values.
const DefaultConfigPath = "config/telemetry.defaults.json"

// maxFileSize bounds config and table files.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Balance time sources.
const (
	TimeSourceWall   = "wall"
	TimeSourcePacket = "packet"
)

// TelemetryConfig is the root configuration. Every field is optional;
// omitted fields fall back to the Get* defaults.
type TelemetryConfig struct {
	// Network
	ListenAddress     *string `json:"listen_address,omitempty"`
	ConsoleAddress    *string `json:"console_address,omitempty"`
	HeartbeatPort     *int    `json:"heartbeat_port,omitempty"`
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"` // duration string like "1s"
	RcvBuf            *int    `json:"rcv_buf,omitempty"`
	LogInterval       *string `json:"log_interval,omitempty"` // duration string like "1m"
	ForwardAddress    *string `json:"forward_address,omitempty"`
	HTTPAddress       *string `json:"http_address,omitempty"`

	// Output
	OutputDir      *string `json:"output_dir,omitempty"`
	BufferSize     *int    `json:"buffer_size,omitempty"`
	AsyncFlush     *bool   `json:"async_flush,omitempty"`
	FlushQueueSize *int    `json:"flush_queue_size,omitempty"`
	RequireMagic   *bool   `json:"require_magic,omitempty"`
	CatalogPath    *string `json:"catalog_path,omitempty"`

	// Extractors
	WindowSize            *int     `json:"window_size,omitempty"`
	BottomingThresholdMM  *float64 `json:"bottoming_threshold_mm,omitempty"`
	SlipThreshold         *float64 `json:"slip_threshold,omitempty"`
	MovingFloorKPH        *float64 `json:"moving_floor_kph,omitempty"`
	HighSpeedThresholdKPH *float64 `json:"high_speed_threshold_kph,omitempty"`
	HighSpeedWindow       *int     `json:"high_speed_window,omitempty"`
	SpinThrottlePct       *float64 `json:"spin_throttle_pct,omitempty"`
	BalanceTimeSource     *string  `json:"balance_time_source,omitempty"`

	// Lookup tables, JSON objects keyed by car code.
	CarTablePath       *string `json:"car_table_path,omitempty"`
	DownforceTablePath *string `json:"downforce_table_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTelemetryConfig returns a TelemetryConfig with all fields set to nil.
func EmptyTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{}
}

// DefaultTelemetryConfig returns a config with every field set to its
// default. It mirrors DefaultConfigPath.
func DefaultTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{
		ListenAddress:         ptrString(":33740"),
		ConsoleAddress:        ptrString(""),
		HeartbeatPort:         ptrInt(33739),
		HeartbeatInterval:     ptrString("1s"),
		RcvBuf:                ptrInt(2 << 20),
		LogInterval:           ptrString("1m"),
		ForwardAddress:        ptrString(""),
		HTTPAddress:           ptrString(""),
		OutputDir:             ptrString("sessions"),
		BufferSize:            ptrInt(10),
		AsyncFlush:            ptrBool(false),
		FlushQueueSize:        ptrInt(4),
		RequireMagic:          ptrBool(true),
		CatalogPath:           ptrString(""),
		WindowSize:            ptrInt(10),
		BottomingThresholdMM:  ptrFloat64(5.0),
		SlipThreshold:         ptrFloat64(1.15),
		MovingFloorKPH:        ptrFloat64(1.0),
		HighSpeedThresholdKPH: ptrFloat64(150),
		HighSpeedWindow:       ptrInt(10),
		SpinThrottlePct:       ptrFloat64(50),
		BalanceTimeSource:     ptrString(TimeSourceWall),
		CarTablePath:          ptrString(""),
		DownforceTablePath:    ptrString(""),
	}
}

// readLimited validates a JSON file path and reads it. The file must have a
// .json extension and be under maxFileSize.
func readLimited(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", cleanPath, err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cleanPath, err)
	}
	return data, nil
}

// LoadTelemetryConfig loads a TelemetryConfig from a JSON file. Fields
// omitted from the file keep their Get* defaults, so partial configs are
// safe.
func LoadTelemetryConfig(path string) (*TelemetryConfig, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := EmptyTelemetryConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TelemetryConfig) Validate() error {
	for name, v := range map[string]*string{
		"heartbeat_interval": c.HeartbeatInterval,
		"log_interval":       c.LogInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	for name, v := range map[string]*int{
		"buffer_size":       c.BufferSize,
		"window_size":       c.WindowSize,
		"high_speed_window": c.HighSpeedWindow,
		"flush_queue_size":  c.FlushQueueSize,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.HeartbeatPort != nil && (*c.HeartbeatPort < 1 || *c.HeartbeatPort > 65535) {
		return fmt.Errorf("heartbeat_port must be between 1 and 65535, got %d", *c.HeartbeatPort)
	}
	if c.SlipThreshold != nil && *c.SlipThreshold <= 1 {
		return fmt.Errorf("slip_threshold must be greater than 1, got %f", *c.SlipThreshold)
	}
	if c.SpinThrottlePct != nil && (*c.SpinThrottlePct < 0 || *c.SpinThrottlePct > 100) {
		return fmt.Errorf("spin_throttle_pct must be between 0 and 100, got %f", *c.SpinThrottlePct)
	}
	for name, v := range map[string]*float64{
		"bottoming_threshold_mm":   c.BottomingThresholdMM,
		"moving_floor_kph":         c.MovingFloorKPH,
		"high_speed_threshold_kph": c.HighSpeedThresholdKPH,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	if c.BalanceTimeSource != nil {
		switch *c.BalanceTimeSource {
		case "", TimeSourceWall, TimeSourcePacket:
		default:
			return fmt.Errorf("balance_time_source must be %q or %q, got %q",
				TimeSourceWall, TimeSourcePacket, *c.BalanceTimeSource)
		}
	}
	return nil
}

func getString(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// GetListenAddress returns the UDP listen address.
func (c *TelemetryConfig) GetListenAddress() string { return getString(c.ListenAddress, ":33740") }

// GetConsoleAddress returns the console address for heartbeats; empty
// disables them.
func (c *TelemetryConfig) GetConsoleAddress() string { return getString(c.ConsoleAddress, "") }

// GetHeartbeatPort returns the console heartbeat port.
func (c *TelemetryConfig) GetHeartbeatPort() int { return getInt(c.HeartbeatPort, 33739) }

// GetHeartbeatInterval parses and returns the heartbeat interval.
func (c *TelemetryConfig) GetHeartbeatInterval() time.Duration {
	return getDuration(c.HeartbeatInterval, time.Second)
}

// GetRcvBuf returns the UDP receive buffer size in bytes.
func (c *TelemetryConfig) GetRcvBuf() int { return getInt(c.RcvBuf, 2<<20) }

// GetLogInterval parses and returns the stats logging interval.
func (c *TelemetryConfig) GetLogInterval() time.Duration {
	return getDuration(c.LogInterval, time.Minute)
}

// GetForwardAddress returns the relay address; empty disables forwarding.
func (c *TelemetryConfig) GetForwardAddress() string { return getString(c.ForwardAddress, "") }

// GetHTTPAddress returns the status API address; empty disables it.
func (c *TelemetryConfig) GetHTTPAddress() string { return getString(c.HTTPAddress, "") }

// GetOutputDir returns the root directory for session folders.
func (c *TelemetryConfig) GetOutputDir() string { return getString(c.OutputDir, "sessions") }

// GetBufferSize returns the number of packet rounds between flushes.
func (c *TelemetryConfig) GetBufferSize() int { return getInt(c.BufferSize, 10) }

// GetAsyncFlush reports whether snapshot files are written off the packet path.
func (c *TelemetryConfig) GetAsyncFlush() bool { return getBool(c.AsyncFlush, false) }

// GetFlushQueueSize returns the async flusher queue depth.
func (c *TelemetryConfig) GetFlushQueueSize() int { return getInt(c.FlushQueueSize, 4) }

// GetRequireMagic reports whether frames with the wrong magic are rejected.
func (c *TelemetryConfig) GetRequireMagic() bool { return getBool(c.RequireMagic, true) }

// GetCatalogPath returns the sqlite catalog path; empty disables the catalog.
func (c *TelemetryConfig) GetCatalogPath() string { return getString(c.CatalogPath, "") }

// GetWindowSize returns the rolling window length.
func (c *TelemetryConfig) GetWindowSize() int { return getInt(c.WindowSize, 10) }

// GetBottomingThresholdMM returns the suspension bottoming threshold.
func (c *TelemetryConfig) GetBottomingThresholdMM() float64 {
	return getFloat(c.BottomingThresholdMM, 5.0)
}

// GetSlipThreshold returns the slip ratio above which a wheel is slipping.
func (c *TelemetryConfig) GetSlipThreshold() float64 { return getFloat(c.SlipThreshold, 1.15) }

// GetMovingFloorKPH returns the speed at or below which slip is not computed.
func (c *TelemetryConfig) GetMovingFloorKPH() float64 { return getFloat(c.MovingFloorKPH, 1.0) }

// GetHighSpeedThresholdKPH returns the aero high-speed threshold.
func (c *TelemetryConfig) GetHighSpeedThresholdKPH() float64 {
	return getFloat(c.HighSpeedThresholdKPH, 150)
}

// GetHighSpeedWindow returns the high-speed sample window length.
func (c *TelemetryConfig) GetHighSpeedWindow() int { return getInt(c.HighSpeedWindow, 10) }

// GetSpinThrottlePct returns the throttle above which slip counts as wheelspin.
func (c *TelemetryConfig) GetSpinThrottlePct() float64 { return getFloat(c.SpinThrottlePct, 50) }

// GetBalanceTimeSource returns "wall" or "packet".
func (c *TelemetryConfig) GetBalanceTimeSource() string {
	return getString(c.BalanceTimeSource, TimeSourceWall)
}

// GetCarTablePath returns the car name table path, if any.
func (c *TelemetryConfig) GetCarTablePath() string { return getString(c.CarTablePath, "") }

// GetDownforceTablePath returns the downforce table path, if any.
func (c *TelemetryConfig) GetDownforceTablePath() string {
	return getString(c.DownforceTablePath, "")
}
