package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

const (
	minCodeLength = 4
	maxCodeLength = 8
)

type Config struct {
	Addr            string
	CodeLength      int
	CodeMaxAttempts int
	EmptyRoomGrace  time.Duration
	OutboxSize      int
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	Dev             bool
	AllowedOrigins  []string
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		CodeLength:      5,
		CodeMaxAttempts: 32,
		OutboxSize:      64,
		PingInterval:    20 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Load reads an optional .env file and then the HEXROOM_* environment.
// Every invalid variable is reported, not just the first.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.str("HEXROOM_ADDR", &cfg.Addr)
	p.int("HEXROOM_CODE_LENGTH", &cfg.CodeLength)
	p.int("HEXROOM_CODE_MAX_ATTEMPTS", &cfg.CodeMaxAttempts)
	p.duration("HEXROOM_EMPTY_ROOM_GRACE", &cfg.EmptyRoomGrace)
	p.int("HEXROOM_OUTBOX_SIZE", &cfg.OutboxSize)
	p.duration("HEXROOM_PING_INTERVAL", &cfg.PingInterval)
	p.duration("HEXROOM_WRITE_TIMEOUT", &cfg.WriteTimeout)
	p.duration("HEXROOM_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	p.str("HEXROOM_LOG_LEVEL", &cfg.LogLevel)
	p.bool("HEXROOM_DEV", &cfg.Dev)
	p.list("HEXROOM_ALLOWED_ORIGINS", &cfg.AllowedOrigins)

	return cfg, multierr.Append(p.err, cfg.validate())
}

func (c Config) validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("HEXROOM_ADDR: must not be empty"))
	}
	if c.CodeLength < minCodeLength || c.CodeLength > maxCodeLength {
		err = multierr.Append(err, fmt.Errorf("HEXROOM_CODE_LENGTH: %d outside [%d, %d]", c.CodeLength, minCodeLength, maxCodeLength))
	}
	if c.CodeMaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("HEXROOM_CODE_MAX_ATTEMPTS: %d must be positive", c.CodeMaxAttempts))
	}
	if c.EmptyRoomGrace < 0 {
		err = multierr.Append(err, errors.New("HEXROOM_EMPTY_ROOM_GRACE: must not be negative"))
	}
	if c.OutboxSize < 1 {
		err = multierr.Append(err, fmt.Errorf("HEXROOM_OUTBOX_SIZE: %d must be positive", c.OutboxSize))
	}
	if c.PingInterval < 0 {
		err = multierr.Append(err, errors.New("HEXROOM_PING_INTERVAL: must not be negative"))
	}
	if c.WriteTimeout <= 0 {
		err = multierr.Append(err, errors.New("HEXROOM_WRITE_TIMEOUT: must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("HEXROOM_SHUTDOWN_TIMEOUT: must be positive"))
	}
	return err
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) fail(key, v string, err error) {
	p.err = multierr.Append(p.err, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = d
}

func (p *parser) bool(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = b
}

func (p *parser) list(key string, dst *[]string) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
