// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS string `yaml:"sysfs"`
	}

	// Rapl selects the measured domains; no zones means every available one
	Rapl struct {
		Zones []string `yaml:"zones"`
		Psys  *bool    `yaml:"psys"`
	}

	Meter struct {
		DefaultTag string        `yaml:"defaultTag"`
		Interval   time.Duration `yaml:"interval"` // record period of the watch command

		// SamplesPerTrace rotates the watch meter every N samples; 0 keeps
		// a single trace until shutdown
		SamplesPerTrace int `yaml:"samplesPerTrace"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeDevice struct {
			Enabled *bool    `yaml:"enabled"`
			Domains []string `yaml:"domains"`
		} `yaml:"fake-device"`
	}
	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	// Exporter configuration
	StdoutExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	FileExporter struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		CSV        FileExporter       `yaml:"csv"`
		SQLite     FileExporter       `yaml:"sqlite"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	// Debug configuration
	PprofDebug struct {
		Enabled *bool `yaml:"enabled"`
	}

	Debug struct {
		Pprof PprofDebug `yaml:"pprof"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Host     Host     `yaml:"host"`
		Rapl     Rapl     `yaml:"rapl"`
		Meter    Meter    `yaml:"meter"`
		Exporter Exporter `yaml:"exporter"`
		Web      Web      `yaml:"web"`
		Debug    Debug    `yaml:"debug"`
		Dev      Dev      `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag = "host.sysfs"

	RaplZonesFlag = "rapl.zone"
	RaplPsysFlag  = "rapl.psys"

	MeterDefaultTagFlag      = "meter.default-tag"
	MeterIntervalFlag        = "meter.interval"
	MeterSamplesPerTraceFlag = "meter.samples-per-trace"

	pprofEnabledFlag = "debug.pprof"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	// Exporters
	ExporterStdoutEnabledFlag = "exporter.stdout"
	ExporterCSVEnabledFlag    = "exporter.csv"
	ExporterCSVPathFlag       = "exporter.csv.path"
	ExporterSQLiteEnabledFlag = "exporter.sqlite"
	ExporterSQLitePathFlag    = "exporter.sqlite.path"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"

	// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
	DevFakeDeviceEnabled = "dev.fake-device.enabled"
)

const (
	DefaultListenAddress = ":28283"
	DefaultCSVPath       = "joulemeter.csv"
	DefaultSQLitePath    = "joulemeter.db"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS: "/sys",
		},
		Rapl: Rapl{
			Zones: []string{},
			Psys:  ptr.To(false),
		},
		Meter: Meter{
			DefaultTag: "",
			Interval:   5 * time.Second,
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled: ptr.To(true),
			},
			CSV: FileExporter{
				Enabled: ptr.To(false),
				Path:    DefaultCSVPath,
			},
			SQLite: FileExporter{
				Enabled: ptr.To(false),
				Path:    DefaultSQLitePath,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
			},
		},
		Debug: Debug{
			Pprof: PprofDebug{
				Enabled: ptr.To(false),
			},
		},
		Web: Web{
			ListenAddresses: []string{DefaultListenAddress},
		},
	}

	cfg.Dev.FakeDevice.Enabled = ptr.To(false)
	return cfg
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()

	// rapl
	raplZones := app.Flag(RaplZonesFlag, "RAPL domain to measure, e.g. package_0 or dram_1; repeat for several; all when unset").Strings()
	raplPsys := app.Flag(RaplPsysFlag, "Measure the psys domain instead of folding it into package_0").Default("false").Bool()

	// meter
	meterDefaultTag := app.Flag(MeterDefaultTagFlag, "Tag of samples recorded without one").Default("").String()
	meterInterval := app.Flag(MeterIntervalFlag, "Interval between two samples in watch mode").Default("5s").Duration()
	meterSamplesPerTrace := app.Flag(MeterSamplesPerTraceFlag,
		"Export and restart the watch trace every N samples; 0 to export only on shutdown").Default("0").Int()

	enablePprof := app.Flag(pprofEnabledFlag, "Enable pprof debug endpoints").Default("false").Bool()
	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(DefaultListenAddress).Strings()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("true").Bool()
	csvExporterEnabled := app.Flag(ExporterCSVEnabledFlag, "Enable CSV exporter").Default("false").Bool()
	csvExporterPath := app.Flag(ExporterCSVPathFlag, "CSV file traces are appended to").Default(DefaultCSVPath).String()
	sqliteExporterEnabled := app.Flag(ExporterSQLiteEnabledFlag, "Enable SQLite exporter").Default("false").Bool()
	sqliteExporterPath := app.Flag(ExporterSQLitePathFlag, "SQLite database traces are stored in").Default(DefaultSQLitePath).String()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[RaplZonesFlag] {
			cfg.Rapl.Zones = *raplZones
		}
		if flagsSet[RaplPsysFlag] {
			cfg.Rapl.Psys = raplPsys
		}

		// meter settings
		if flagsSet[MeterDefaultTagFlag] {
			cfg.Meter.DefaultTag = *meterDefaultTag
		}
		if flagsSet[MeterIntervalFlag] {
			cfg.Meter.Interval = *meterInterval
		}
		if flagsSet[MeterSamplesPerTraceFlag] {
			cfg.Meter.SamplesPerTrace = *meterSamplesPerTrace
		}

		if flagsSet[pprofEnabledFlag] {
			cfg.Debug.Pprof.Enabled = enablePprof
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}

		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}

		if flagsSet[ExporterCSVEnabledFlag] {
			cfg.Exporter.CSV.Enabled = csvExporterEnabled
		}
		if flagsSet[ExporterCSVPathFlag] {
			cfg.Exporter.CSV.Path = *csvExporterPath
		}

		if flagsSet[ExporterSQLiteEnabledFlag] {
			cfg.Exporter.SQLite.Enabled = sqliteExporterEnabled
		}
		if flagsSet[ExporterSQLitePathFlag] {
			cfg.Exporter.SQLite.Path = *sqliteExporterPath
		}

		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	c.Exporter.CSV.Path = strings.TrimSpace(c.Exporter.CSV.Path)
	c.Exporter.SQLite.Path = strings.TrimSpace(c.Exporter.SQLite.Path)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}

	for i := range c.Rapl.Zones {
		c.Rapl.Zones[i] = strings.TrimSpace(c.Rapl.Zones[i])
	}
	for i := range c.Dev.FakeDevice.Domains {
		c.Dev.FakeDevice.Domains[i] = strings.TrimSpace(c.Dev.FakeDevice.Domains[i])
	}

	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
}

// Domains returns the parsed rapl.zones
func (c *Config) Domains() ([]device.Domain, error) {
	return device.ParseDomains(c.Rapl.Zones)
}

// FakeDomains returns the parsed dev.fake-device.domains
func (c *Config) FakeDomains() ([]device.Domain, error) {
	return device.ParseDomains(c.Dev.FakeDevice.Domains)
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // host settings; a fake device does not read sysfs
		if _, skip := validationSkipped[SkipHostValidation]; !skip && !ptr.Deref(c.Dev.FakeDevice.Enabled, false) {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
		}
	}
	{ // domains
		if _, err := c.Domains(); err != nil {
			errs = append(errs, fmt.Sprintf("invalid rapl zones: %s", err.Error()))
		}
		if _, err := c.FakeDomains(); err != nil {
			errs = append(errs, fmt.Sprintf("invalid fake device domains: %s", err.Error()))
		}
	}
	{ // meter
		if c.Meter.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid meter interval: %s must be positive", c.Meter.Interval))
		}
		if c.Meter.SamplesPerTrace < 0 {
			errs = append(errs, fmt.Sprintf("invalid meter samples per trace: %d can't be negative", c.Meter.SamplesPerTrace))
		}
	}
	{ // file exporters
		if ptr.Deref(c.Exporter.CSV.Enabled, false) && c.Exporter.CSV.Path == "" {
			errs = append(errs, "csv exporter enabled without a path")
		}
		if ptr.Deref(c.Exporter.SQLite.Enabled, false) && c.Exporter.SQLite.Path == "" {
			errs = append(errs, "sqlite exporter enabled without a path")
		}
	}
	{ // Web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}
	{ // Web listen addresses
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address must be specified")
		}
		for _, addr := range c.Web.ListenAddresses {
			if addr == "" {
				errs = append(errs, "web listen address cannot be empty")
				continue
			}
			if err := validateListenAddress(addr); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	// an empty directory is readable
	if _, err = f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	return err
}

func validateListenAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	// host can be empty for listening on all interfaces
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: yaml marshalling of Config is not expected to fail
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{RaplZonesFlag, strings.Join(c.Rapl.Zones, ", ")},
		{RaplPsysFlag, fmt.Sprintf("%v", ptr.Deref(c.Rapl.Psys, false))},
		{MeterDefaultTagFlag, c.Meter.DefaultTag},
		{MeterIntervalFlag, c.Meter.Interval.String()},
		{MeterSamplesPerTraceFlag, strconv.Itoa(c.Meter.SamplesPerTrace)},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterCSVEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.CSV.Enabled, false))},
		{ExporterCSVPathFlag, c.Exporter.CSV.Path},
		{ExporterSQLiteEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.SQLite.Enabled, false))},
		{ExporterSQLitePathFlag, c.Exporter.SQLite.Path},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusDebugCollectors, strings.Join(c.Exporter.Prometheus.DebugCollectors, ", ")},
		{pprofEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Debug.Pprof.Enabled, false))},
		{WebConfigFlag, c.Web.Config},
		{WebListenAddressFlag, strings.Join(c.Web.ListenAddresses, ", ")},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
