package config

import (
	"path/filepath"
	"runtime"
)

// Config represents the complete application configuration
type Config struct {
	Pkgroot       string        `yaml:"pkgroot"`
	Repo          string        `yaml:"repo"`
	Distributions []string      `yaml:"distributions"`
	Components    []string      `yaml:"components"`
	Architectures []string      `yaml:"architectures"`
	TriggerDelay  float64       `yaml:"trigger_delay_seconds"`
	Application   AppConfig     `yaml:"application,omitempty"`
	Workers       WorkersConfig `yaml:"workers,omitempty"`
	Signing       SigningConfig `yaml:"signing"`
	HTTP          HTTPConfig    `yaml:"http,omitempty"`
	Auth          AuthConfig    `yaml:"auth,omitempty"`
	ConfigDir     string        `yaml:"-"` // Directory containing config.yaml (set during Load)
}

// AppConfig carries the Release manifest's Origin/Label fields.
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// WorkersConfig defines worker pool sizes
type WorkersConfig struct {
	Generate uint `yaml:"generate"` // 0 = runtime.NumCPU()
}

// SigningConfig contains GPG signing configuration
type SigningConfig struct {
	PrivateKeyID         string `yaml:"private_key_id"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	PrivateKeyPassphrase string `yaml:"private_key_passphrase,omitempty"`
	PublicKeyPath        string `yaml:"public_key_path"`
	PublicName           string `yaml:"public_name"` // filename the public key is served as, e.g. debrepod.gpg
}

// GetPrivateKeyPath returns the absolute path to the private key
func (s *SigningConfig) GetPrivateKeyPath(configDir string) string {
	if s.PrivateKeyPath == "" || filepath.IsAbs(s.PrivateKeyPath) {
		return s.PrivateKeyPath
	}
	return filepath.Join(configDir, s.PrivateKeyPath)
}

// GetPublicKeyPath returns the absolute path to the public key
func (s *SigningConfig) GetPublicKeyPath(configDir string) string {
	if s.PublicKeyPath == "" || filepath.IsAbs(s.PublicKeyPath) {
		return s.PublicKeyPath
	}
	return filepath.Join(configDir, s.PublicKeyPath)
}

// HTTPConfig contains the directory service's HTTP transport configuration
type HTTPConfig struct {
	ListenAddrs      []string `yaml:"listen_addrs"`
	URLScheme        string   `yaml:"url_scheme,omitempty"`
	URLPrefix        string   `yaml:"url_prefix,omitempty"`
	ReadTimeout      int      `yaml:"read_timeout_seconds,omitempty"`
	WriteTimeout     int      `yaml:"write_timeout_seconds,omitempty"`
	IdleTimeout      int      `yaml:"idle_timeout_seconds,omitempty"`
	MaxHeaderBytes   int      `yaml:"max_header_bytes,omitempty"`
	ShutdownTimeoutS int      `yaml:"shutdown_timeout_seconds,omitempty"`
}

// AuthConfig gates private subtrees behind HTTP Basic auth
type AuthConfig struct {
	PrivateDirs   []string `yaml:"private_dirs,omitempty"`
	BasicUser     string   `yaml:"basic_user,omitempty"`
	BasicPassword string   `yaml:"basic_password,omitempty"`
}

// GetPkgrootPath returns the absolute path to the package root
func (c *Config) GetPkgrootPath() string {
	if filepath.IsAbs(c.Pkgroot) {
		return c.Pkgroot
	}
	return filepath.Join(c.ConfigDir, c.Pkgroot)
}

// GetRepoPath returns the absolute path to the generated repository tree
func (c *Config) GetRepoPath() string {
	if filepath.IsAbs(c.Repo) {
		return c.Repo
	}
	return filepath.Join(c.ConfigDir, c.Repo)
}

// GenerateWorkers returns the effective worker count for Packages generation
func (w *WorkersConfig) GenerateWorkers() int {
	if w.Generate == 0 {
		return runtime.NumCPU()
	}
	return int(w.Generate)
}

// defaults applies default values to the configuration
func (c *Config) defaults() {
	if c.Pkgroot == "" {
		c.Pkgroot = "pool"
	}
	if c.Repo == "" {
		c.Repo = "repo"
	}
	if len(c.Components) == 0 {
		c.Components = []string{"main"}
	}
	if c.TriggerDelay <= 0 {
		c.TriggerDelay = 2.0
	}
	if c.Application.Name == "" {
		c.Application.Name = "debrepod"
	}
	if c.Application.Version == "" {
		c.Application.Version = "1.0"
	}

	if len(c.HTTP.ListenAddrs) == 0 {
		c.HTTP.ListenAddrs = []string{"0.0.0.0:8080"}
	}
	if c.HTTP.URLScheme == "" {
		c.HTTP.URLScheme = "http"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 30
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 120
	}
	if c.HTTP.MaxHeaderBytes == 0 {
		c.HTTP.MaxHeaderBytes = 1 << 20
	}
	if c.HTTP.ShutdownTimeoutS == 0 {
		c.HTTP.ShutdownTimeoutS = 5
	}

	if c.Signing.PublicName == "" {
		c.Signing.PublicName = c.Application.Name + ".gpg"
	}
}
