// Package config loads and validates the server configuration file.
//
// The file is JSON. Every key may be overridden from the environment with
// the FTPD_ prefix, for example FTPD_ROOT_DIR or FTPD_PORT.
//
//	{
//	  "host": "127.0.0.1",
//	  "port": 2121,
//	  "admin": {"username": "admin", "password": "secret"},
//	  "users": [{"username": "guest", "password": ""}]
//	}
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultFileName is the configuration file read when none is given.
const DefaultFileName = "ftp_server.json"

// Defaults applied before the file is read.
const (
	DefaultHost                 = "127.0.0.1"
	DefaultPort                 = 2121
	DefaultRootDir              = "ROOT"
	DefaultProtectedFile        = "config.json"
	DefaultIdleTimeout          = 5 * time.Minute
	DefaultPassiveAcceptTimeout = 30 * time.Second
)

// ServerConfig is the loaded configuration. It is not modified after Load
// returns and may be shared by all sessions.
type ServerConfig struct {
	Host  string       `mapstructure:"host" json:"host"`
	Port  int          `mapstructure:"port" json:"port"`
	Admin *Credential  `mapstructure:"admin" json:"admin,omitempty"`
	Users []Credential `mapstructure:"users" json:"users"`

	RootDir              string        `mapstructure:"root_dir" json:"root_dir,omitempty"`
	ProtectedFile        string        `mapstructure:"protected_file" json:"protected_file,omitempty"`
	PublicHost           string        `mapstructure:"public_host" json:"public_host,omitempty"`
	PassivePortMin       int           `mapstructure:"passive_port_min" json:"passive_port_min,omitempty"`
	PassivePortMax       int           `mapstructure:"passive_port_max" json:"passive_port_max,omitempty"`
	MaxConnections       int           `mapstructure:"max_connections" json:"max_connections,omitempty"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout" json:"idle_timeout,omitempty"`
	PassiveAcceptTimeout time.Duration `mapstructure:"passive_accept_timeout" json:"passive_accept_timeout,omitempty"`
	BandwidthLimit       int64         `mapstructure:"bandwidth_limit" json:"bandwidth_limit,omitempty"`
	ASCIITranslation     bool          `mapstructure:"ascii_translation" json:"ascii_translation,omitempty"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Lookup finds the credential for name. The administrator is checked
// first. ok is false for unknown names.
func (c *ServerConfig) Lookup(name string) (cred Credential, isAdmin, ok bool) {
	if c.Admin != nil && c.Admin.Username == name {
		return *c.Admin, true, true
	}
	for _, u := range c.Users {
		if u.Username == name {
			return u, false, true
		}
	}
	return Credential{}, false, false
}

// Validate checks the configuration for values the server cannot run with.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	seen := make(map[string]bool, len(c.Users)+1)
	if c.Admin != nil {
		if c.Admin.Username == "" {
			return errors.New("admin username is empty")
		}
		seen[c.Admin.Username] = true
	}
	for i, u := range c.Users {
		if u.Username == "" {
			return errors.Errorf("users[%d]: username is empty", i)
		}
		if seen[u.Username] {
			return errors.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = true
	}
	if c.PassivePortMin < 0 || c.PassivePortMax < 0 || c.PassivePortMax > 65535 {
		return errors.Errorf("passive port range [%d, %d] out of range", c.PassivePortMin, c.PassivePortMax)
	}
	if (c.PassivePortMin == 0) != (c.PassivePortMax == 0) || c.PassivePortMin > c.PassivePortMax {
		return errors.Errorf("invalid passive port range [%d, %d]", c.PassivePortMin, c.PassivePortMax)
	}
	if c.MaxConnections < 0 {
		return errors.New("max_connections must not be negative")
	}
	if c.BandwidthLimit < 0 {
		return errors.New("bandwidth_limit must not be negative")
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("FTPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("users", []Credential{})
	v.SetDefault("root_dir", DefaultRootDir)
	v.SetDefault("protected_file", DefaultProtectedFile)
	v.SetDefault("public_host", "")
	v.SetDefault("passive_port_min", 0)
	v.SetDefault("passive_port_max", 0)
	v.SetDefault("max_connections", 0)
	v.SetDefault("idle_timeout", DefaultIdleTimeout)
	v.SetDefault("passive_accept_timeout", DefaultPassiveAcceptTimeout)
	v.SetDefault("bandwidth_limit", 0)
	v.SetDefault("ascii_translation", false)
	return v
}

// Load reads and validates the configuration file at path.
func Load(path string) (*ServerConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return decode(v)
}

// LoadOrCreate behaves like Load but writes a default file first when path
// does not exist.
func LoadOrCreate(path string) (*ServerConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

func decode(v *viper.Viper) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// Default returns the configuration written by WriteDefault: no
// administrator and no users, so every login is refused until the file is
// edited.
func Default() *ServerConfig {
	return &ServerConfig{
		Host:  DefaultHost,
		Port:  DefaultPort,
		Users: []Credential{},
	}
}

// WriteDefault writes Default to path. An existing file is left untouched.
func WriteDefault(path string) error {
	v := newViper()
	v.Set("host", DefaultHost)
	v.Set("port", DefaultPort)
	v.Set("users", []map[string]string{})
	v.Set("idle_timeout", DefaultIdleTimeout.String())
	v.Set("passive_accept_timeout", DefaultPassiveAcceptTimeout.String())
	if err := v.SafeWriteConfigAs(path); err != nil {
		return errors.Wrapf(err, "writing default config %s", path)
	}
	return nil
}
