package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort        = 80
	DefaultWorkers     = 4
	DefaultQueueSize   = 1024
	DefaultHeaderLimit = 1024
	DefaultReadTimeout = 3 * time.Second
	DefaultLogFile     = "logs.txt"
	DefaultServiceName = "filedrop"
)

var DefaultHosts = []string{"0.0.0.0", "::1"}

// Config is built once at startup and handed to the server by value.
type Config struct {
	Port int
	// directory files are served from
	Root string
	// one listener, with its own worker pool, per host
	Hosts       []string
	Workers     int
	QueueSize   int
	HeaderLimit int
	// bounds the wait for the request head; zero disables the deadline
	ReadTimeout time.Duration
	LogFile     string
	ServiceName string
}

// Default returns the configuration used when no arguments are given. The
// root is <cwd>/folder.
func Default() (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	return Config{
		Port:        DefaultPort,
		Root:        filepath.Join(cwd, "folder"),
		Hosts:       append([]string(nil), DefaultHosts...),
		Workers:     DefaultWorkers,
		QueueSize:   DefaultQueueSize,
		HeaderLimit: DefaultHeaderLimit,
		ReadTimeout: DefaultReadTimeout,
		LogFile:     DefaultLogFile,
		ServiceName: DefaultServiceName,
	}, nil
}

// Parse applies KEY=value tokens from args on top of Default. Tokens with an
// unknown key, or without '=', are ignored.
func Parse(args []string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}

		switch key {
		case "PORT":
			cfg.Port, err = parsePort(value)
		case "PATH":
			cfg.Root = value
		case "HOSTS":
			cfg.Hosts = splitList(value)
		case "WORKERS":
			cfg.Workers, err = strconv.Atoi(value)
		case "QUEUE":
			cfg.QueueSize, err = strconv.Atoi(value)
		case "HEADER_LIMIT":
			cfg.HeaderLimit, err = strconv.Atoi(value)
		case "READ_TIMEOUT":
			cfg.ReadTimeout, err = time.ParseDuration(value)
		case "LOG_FILE":
			cfg.LogFile = value
		case "SERVICE_NAME":
			cfg.ServiceName = value
		}
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Root == "" {
		errs = append(errs, errors.New("root path is empty"))
	}
	if len(c.Hosts) == 0 {
		errs = append(errs, errors.New("no listen hosts"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("worker count %d must be positive", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue size %d is negative", c.QueueSize))
	}
	if c.HeaderLimit <= 0 {
		errs = append(errs, fmt.Errorf("header limit %d must be positive", c.HeaderLimit))
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("read timeout %s is negative", c.ReadTimeout))
	}
	return errors.Join(errs...)
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
