package config

import (
	"errors"
	"fmt"
	"regexp"
)

// distNamePattern matches valid distribution/component names (alphanumeric, dash, underscore)
var distNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validation errors
var (
	ErrPkgrootEmpty        = errors.New("pkgroot is required")
	ErrRepoEmpty           = errors.New("repo is required")
	ErrNoDistributions     = errors.New("at least one distribution is required")
	ErrDistributionInvalid = errors.New("distribution name is invalid")
	ErrNoComponents        = errors.New("at least one component is required")
	ErrComponentInvalid    = errors.New("component name is invalid")
	ErrNoArchitectures     = errors.New("at least one architecture is required")
	ErrTriggerDelayNeg     = errors.New("trigger_delay_seconds must not be negative")
	ErrPrivateKeyPathEmpty = errors.New("signing.private_key_path is required")
	ErrPublicKeyPathEmpty  = errors.New("signing.public_key_path is required")
	ErrPrivateKeyIDEmpty   = errors.New("signing.private_key_id is required")
	ErrNoListenAddrs       = errors.New("http.listen_addrs must contain at least one address")
	ErrBasicAuthIncomplete = errors.New("auth.basic_user and auth.basic_password must both be set or both be empty")
)

// validate performs validation on the loaded configuration
func validate(cfg *Config) error {
	if cfg.Pkgroot == "" {
		return ErrPkgrootEmpty
	}
	if cfg.Repo == "" {
		return ErrRepoEmpty
	}

	if len(cfg.Distributions) == 0 {
		return ErrNoDistributions
	}
	for _, d := range cfg.Distributions {
		if !distNamePattern.MatchString(d) {
			return fmt.Errorf("%w: %q", ErrDistributionInvalid, d)
		}
	}

	if len(cfg.Components) == 0 {
		return ErrNoComponents
	}
	for _, comp := range cfg.Components {
		if !distNamePattern.MatchString(comp) {
			return fmt.Errorf("%w: %q", ErrComponentInvalid, comp)
		}
	}

	if len(cfg.Architectures) == 0 {
		return ErrNoArchitectures
	}

	if cfg.TriggerDelay < 0 {
		return ErrTriggerDelayNeg
	}

	if err := validateSigning(&cfg.Signing); err != nil {
		return err
	}

	if len(cfg.HTTP.ListenAddrs) == 0 {
		return ErrNoListenAddrs
	}

	if (cfg.Auth.BasicUser == "") != (cfg.Auth.BasicPassword == "") {
		return ErrBasicAuthIncomplete
	}

	return nil
}

// validateSigning validates the signing configuration
func validateSigning(s *SigningConfig) error {
	if s.PrivateKeyPath == "" {
		return ErrPrivateKeyPathEmpty
	}
	if s.PublicKeyPath == "" {
		return ErrPublicKeyPathEmpty
	}
	if s.PrivateKeyID == "" {
		return ErrPrivateKeyIDEmpty
	}
	return nil
}
