package config

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_GetPkgrootPath(t *testing.T) {
	tests := []struct {
		name      string
		configDir string
		pkgroot   string
		want      string
	}{
		{
			name:      "absolute path",
			configDir: "/etc/debrepod",
			pkgroot:   "/srv/pool",
			want:      "/srv/pool",
		},
		{
			name:      "relative path",
			configDir: "/etc/debrepod",
			pkgroot:   "pool",
			want:      "/etc/debrepod/pool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{ConfigDir: tt.configDir, Pkgroot: tt.pkgroot}
			assert.Equal(t, tt.want, c.GetPkgrootPath())
		})
	}
}

func TestConfig_GetRepoPath(t *testing.T) {
	tests := []struct {
		name      string
		configDir string
		repo      string
		want      string
	}{
		{
			name:      "absolute path",
			configDir: "/etc/debrepod",
			repo:      "/srv/repo",
			want:      "/srv/repo",
		},
		{
			name:      "relative path",
			configDir: "/etc/debrepod",
			repo:      "repo",
			want:      "/etc/debrepod/repo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{ConfigDir: tt.configDir, Repo: tt.repo}
			assert.Equal(t, tt.want, c.GetRepoPath())
		})
	}
}

func TestSigningConfig_GetPrivateKeyPath(t *testing.T) {
	tests := []struct {
		name       string
		privateKey string
		configDir  string
		want       string
	}{
		{
			name:       "absolute path",
			privateKey: "/etc/keys/private.asc",
			configDir:  "/etc/debrepod",
			want:       "/etc/keys/private.asc",
		},
		{
			name:       "relative path",
			privateKey: "keys/private.asc",
			configDir:  "/etc/debrepod",
			want:       "/etc/debrepod/keys/private.asc",
		},
		{
			name:       "empty path",
			privateKey: "",
			configDir:  "/etc/debrepod",
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SigningConfig{PrivateKeyPath: tt.privateKey}
			assert.Equal(t, tt.want, s.GetPrivateKeyPath(tt.configDir))
		})
	}
}

func TestSigningConfig_GetPublicKeyPath(t *testing.T) {
	tests := []struct {
		name      string
		publicKey string
		configDir string
		want      string
	}{
		{
			name:      "absolute path",
			publicKey: "/etc/keys/public.asc",
			configDir: "/etc/debrepod",
			want:      "/etc/keys/public.asc",
		},
		{
			name:      "relative path",
			publicKey: "keys/public.asc",
			configDir: "/etc/debrepod",
			want:      "/etc/debrepod/keys/public.asc",
		},
		{
			name:      "empty path",
			publicKey: "",
			configDir: "/etc/debrepod",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SigningConfig{PublicKeyPath: tt.publicKey}
			assert.Equal(t, tt.want, s.GetPublicKeyPath(tt.configDir))
		})
	}
}

func TestWorkersConfig_GenerateWorkers(t *testing.T) {
	t.Run("zero falls back to NumCPU", func(t *testing.T) {
		w := &WorkersConfig{Generate: 0}
		assert.Equal(t, runtime.NumCPU(), w.GenerateWorkers())
	})

	t.Run("explicit value is preserved", func(t *testing.T) {
		w := &WorkersConfig{Generate: 4}
		assert.Equal(t, 4, w.GenerateWorkers())
	})
}

func TestConfig_defaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		checkFn func(*testing.T, *Config)
	}{
		{
			name: "applies core defaults",
			cfg:  &Config{},
			checkFn: func(t *testing.T, c *Config) {
				assert.Equal(t, "pool", c.Pkgroot)
				assert.Equal(t, "repo", c.Repo)
				assert.Equal(t, []string{"main"}, c.Components)
				assert.Equal(t, 2.0, c.TriggerDelay)
				assert.Equal(t, "debrepod", c.Application.Name)
				assert.Equal(t, "1.0", c.Application.Version)
			},
		},
		{
			name: "applies http defaults",
			cfg:  &Config{},
			checkFn: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"0.0.0.0:8080"}, c.HTTP.ListenAddrs)
				assert.Equal(t, "http", c.HTTP.URLScheme)
				assert.Equal(t, 30, c.HTTP.ReadTimeout)
				assert.Equal(t, 30, c.HTTP.WriteTimeout)
				assert.Equal(t, 120, c.HTTP.IdleTimeout)
				assert.Equal(t, 1<<20, c.HTTP.MaxHeaderBytes)
				assert.Equal(t, 5, c.HTTP.ShutdownTimeoutS)
			},
		},
		{
			name: "derives public key filename from application name",
			cfg:  &Config{},
			checkFn: func(t *testing.T, c *Config) {
				assert.Equal(t, "debrepod.gpg", c.Signing.PublicName)
			},
		},
		{
			name: "preserves existing values",
			cfg: &Config{
				Pkgroot:     "/custom/pool",
				Application: AppConfig{Name: "myrepo"},
			},
			checkFn: func(t *testing.T, c *Config) {
				assert.Equal(t, "/custom/pool", c.Pkgroot)
				assert.Equal(t, "myrepo", c.Application.Name)
				assert.Equal(t, "myrepo.gpg", c.Signing.PublicName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.defaults()
			tt.checkFn(t, tt.cfg)
		})
	}
}
