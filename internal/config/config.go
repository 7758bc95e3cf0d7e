package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mre/envy/pkg/envy"
)

type Config struct {
	ConfigPath  string
	LogLevel    string
	Timeout     int
	Interpreter string

	Transport string
	Host      string
	Port      int

	ShowHelp    bool
	ShowVersion bool
}

func NewConfig() *Config {
	return &Config{
		ConfigPath:  "",
		LogLevel:    "warn",
		Timeout:     30,
		Interpreter: "bash",

		Transport: "stdio",
		Host:      "127.0.0.1",
		Port:      8000,
	}
}

// ParseFlags applies environment overrides, then parses the global flags in
// args. Parsing stops at the first non-flag argument; the subcommand and its
// arguments are returned.
func (c *Config) ParseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	if err := c.loadFromEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	fs.SetInterspersed(false)
	fs.StringVarP(&c.ConfigPath, "config", "c", c.ConfigPath, "Path to the envy config file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.IntVar(&c.Timeout, "timeout", c.Timeout, "Timeout for running .envrc files in seconds")
	fs.StringVar(&c.Interpreter, "interpreter", c.Interpreter, "Interpreter used to run .envrc files")
	fs.BoolVarP(&c.ShowHelp, "help", "h", false, "Show help message")
	fs.BoolVar(&c.ShowVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if c.ShowHelp || c.ShowVersion {
		return fs.Args(), nil
	}

	if c.ConfigPath == "" {
		path, err := envy.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("cannot determine config directory: %w", err)
		}
		c.ConfigPath = path
	}

	return fs.Args(), c.Validate()
}

// AddServerFlags registers the flags of the mcp subcommand.
func (c *Config) AddServerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Transport, "transport", c.Transport, "Transport mechanism (stdio, sse, streamable-http)")
	fs.StringVar(&c.Host, "host", c.Host, "Host to listen on (for non-stdio transport)")
	fs.IntVar(&c.Port, "port", c.Port, "Port to listen on (for non-stdio transport)")
}

func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	if path, ok := lookup("ENVY_CONFIG"); ok && path != "" {
		c.ConfigPath = path
	}

	if level, ok := lookup("ENVY_LOG_LEVEL"); ok && level != "" {
		c.LogLevel = level
	}

	if timeout, ok := lookup("ENVY_TIMEOUT"); ok && timeout != "" {
		seconds, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid ENVY_TIMEOUT %q: %w", timeout, err)
		}
		c.Timeout = seconds
	}

	if interpreter, ok := lookup("ENVY_INTERPRETER"); ok && interpreter != "" {
		c.Interpreter = interpreter
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}

	if c.Interpreter == "" {
		return fmt.Errorf("interpreter must not be empty")
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

func (c *Config) ValidateTransport() error {
	validTransports := map[string]bool{
		"stdio":           true,
		"sse":             true,
		"streamable-http": true,
	}

	if !validTransports[c.Transport] {
		return fmt.Errorf("invalid transport: %s (must be stdio, sse, or streamable-http)", c.Transport)
	}

	if c.Transport != "stdio" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	return nil
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ResolverConfig builds the resolution settings for the current process.
func (c *Config) ResolverConfig() envy.ResolverConfig {
	return envy.ResolverConfig{
		ConfigPath: c.ConfigPath,
		Sandbox: envy.SandboxConfig{
			Interpreter: c.Interpreter,
			Timeout:     c.TimeoutDuration(),
		},
	}
}
