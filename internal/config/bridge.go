package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// BridgeConfig holds configuration for the tool bridge.
type BridgeConfig struct {
	BridgeID   string
	BridgeName string
	Credential string

	ManifestName   string
	ManifestDirs   []string
	HelperTimeout  time.Duration
	RequestTimeout time.Duration
	ExecTimeout    time.Duration
	QueueSize      int
	StreamRetries  int

	LegacyAddr     string
	StatusAddr     string
	MetricsAddr    string
	AllowedOrigins []string
	DrainTimeout   time.Duration

	ConfigFile string
	LogLevel   string
}

// BindFlags registers command line flags, seeding defaults from the
// environment.
func (c *BridgeConfig) BindFlags() {
	c.ConfigFile = GetEnv("CONFIG_FILE", DefaultConfigPath("bridge.yaml"))
	c.LogLevel = GetEnv("LOG_LEVEL", "info")

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "bridge-" + uuid.NewString()[:8]
	}
	c.BridgeID = GetEnv("BRIDGE_ID", host)
	c.BridgeName = GetEnv("BRIDGE_NAME", host)
	c.Credential = GetEnv("TOOL_API_KEY", "")

	c.ManifestName = GetEnv("MANIFEST_NAME", "com.mcplink.relay.json")
	c.ManifestDirs = splitList(GetEnv("MANIFEST_DIRS", ""))
	c.HelperTimeout = secondsEnv("HELPER_TIMEOUT", 5*time.Second)
	c.RequestTimeout = secondsEnv("REQUEST_TIMEOUT", 10*time.Second)
	c.ExecTimeout = secondsEnv("EXEC_TIMEOUT", 30*time.Second)
	qs := GetEnv("QUEUE_SIZE", "32")
	if v, err := strconv.Atoi(qs); err == nil {
		c.QueueSize = v
	} else {
		c.QueueSize = 32
	}
	sr := GetEnv("STREAM_RETRIES", "5")
	if v, err := strconv.Atoi(sr); err == nil {
		c.StreamRetries = v
	} else {
		c.StreamRetries = 5
	}

	c.LegacyAddr = GetEnv("LEGACY_ADDR", "127.0.0.1:9876")
	c.StatusAddr = GetEnv("STATUS_ADDR", "")
	mp := GetEnv("METRICS_PORT", "")
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.AllowedOrigins = splitList(GetEnv("ALLOWED_ORIGINS", ""))
	if d, err := time.ParseDuration(GetEnv("DRAIN_TIMEOUT", "1m")); err == nil {
		c.DrainTimeout = d
	} else {
		c.DrainTimeout = time.Minute
	}

	flag.StringVar(&c.BridgeID, "bridge-id", c.BridgeID, "bridge identifier used in callback endpoints; defaults to the hostname")
	flag.StringVar(&c.BridgeName, "bridge-name", c.BridgeName, "bridge display name shown in logs and status")
	flag.StringVar(&c.Credential, "api-key", c.Credential, "credential included with tool registrations; leave empty for no auth")
	flag.StringVar(&c.ManifestName, "manifest-name", c.ManifestName, "file name of the native helper manifest to locate")
	flag.Func("manifest-dir", "extra directory to search for the helper manifest (repeatable)", func(v string) error {
		c.ManifestDirs = append(c.ManifestDirs, v)
		return nil
	})
	flag.Func("helper-timeout", "seconds to wait for the helper to print its endpoint", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.HelperTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.Func("request-timeout", "seconds to wait for a correlated relay reply", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.Func("exec-timeout", "seconds a tool call may run before its caller gives up", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.ExecTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "maximum tool calls waiting for the host runtime")
	flag.IntVar(&c.StreamRetries, "stream-retries", c.StreamRetries, "reconnect attempts before the relay session is abandoned")
	flag.StringVar(&c.LegacyAddr, "legacy-addr", c.LegacyAddr, "listen address for the legacy direct transport")
	flag.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "local status HTTP listen address (enables /status; e.g. 127.0.0.1:4555)")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (disabled when empty; e.g. 127.0.0.1:9090 or 9090)")
	flag.Func("allowed-origin", "origin allowed to call the status server (repeatable)", func(v string) error {
		c.AllowedOrigins = append(c.AllowedOrigins, v)
		return nil
	})
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight calls on shutdown")
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
}

// LoadFile populates the config from a YAML file. Fields already set remain
// unless overwritten by corresponding entries in the file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func secondsEnv(key string, def time.Duration) time.Duration {
	v, err := strconv.ParseFloat(GetEnv(key, ""), 64)
	if err != nil {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
