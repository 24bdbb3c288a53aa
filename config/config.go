package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile    = "liftctl.yaml"
	DefaultEnvFile = ".env"

	envPrefix = "LIFTCTL_"
)

type Controller struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Controller Controller `yaml:"controller"`

	// SegmentDir holds the state sockets of the cars.
	SegmentDir string `yaml:"segment_dir"`

	// ReconnectDelay between dial attempts of a car; 0 uses the car's
	// step delay.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// WriteTimeout bounds every FLOOR push of the dispatcher.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// LockTimeout bounds how long an attached process may hold a car's
	// state lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// RequestTimeout bounds a call request from dial to reply.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func Default() Config {
	return Config{
		Controller: Controller{
			Host: "127.0.0.1",
			Port: 3000,
		},
		SegmentDir:     os.TempDir(),
		WriteTimeout:   time.Second,
		LockTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// ControllerAddr is the dispatcher's TCP address.
func (c Config) ControllerAddr() string {
	return net.JoinHostPort(c.Controller.Host, strconv.Itoa(c.Controller.Port))
}

// ListenAddr is where the dispatcher accepts connections: the controller
// port on every interface.
func (c Config) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Controller.Port))
}

// Sources names where Load looks for settings.
type Sources struct {
	File         string
	FileRequired bool
	EnvFile      string

	// Getenv defaults to os.Getenv.
	Getenv func(key string) string
}

// Load starts from the defaults and applies the YAML file, then the
// environment. Variables of the process take precedence over the .env
// file.
func Load(src Sources) (Config, error) {
	c := Default()

	if src.File != "" {
		if err := c.readFile(src.File); err != nil {
			if src.FileRequired || !errors.Is(err, fs.ErrNotExist) {
				return c, err
			}
		}
	}

	dotenv := map[string]string{}
	if src.EnvFile != "" {
		vars, err := godotenv.Read(src.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("reading %s: %w", src.EnvFile, err)
		}
		if vars != nil {
			dotenv = vars
		}
	}
	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) string {
		if v := getenv(envPrefix + key); v != "" {
			return v
		}
		return dotenv[envPrefix+key]
	}

	if err := c.applyEnv(lookup); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(key string) string) error {
	if v := lookup("CONTROLLER_HOST"); v != "" {
		c.Controller.Host = v
	}
	if v := lookup("CONTROLLER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONTROLLER_PORT: %w", envPrefix, err)
		}
		c.Controller.Port = port
	}
	if v := lookup("SEGMENT_DIR"); v != "" {
		c.SegmentDir = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RECONNECT_DELAY", &c.ReconnectDelay},
		{"WRITE_TIMEOUT", &c.WriteTimeout},
		{"LOCK_TIMEOUT", &c.LockTimeout},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
	}
	for _, d := range durations {
		v := lookup(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c Config) validate() error {
	if c.Controller.Port <= 0 || c.Controller.Port > 65535 {
		return fmt.Errorf("controller port %d out of range", c.Controller.Port)
	}
	if c.ReconnectDelay < 0 || c.WriteTimeout <= 0 || c.LockTimeout <= 0 || c.RequestTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}
