// Package config loads and validates the TOML files that describe
// studies and the solver daemon.
//
// Ownership boundaries:
//   - config owns file parsing, defaults, and template generation
//   - simulation owns the study model and its semantic validation
//   - server owns how a daemon uses its configuration
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/gridmesh/internal/simulation"
)

// DaemonConfig describes one gridmeshd instance.
type DaemonConfig struct {
	Name              string   `toml:"name"`
	ListenAddr        string   `toml:"listen_addr"`
	AdminAddr         string   `toml:"admin_addr"`
	AuthToken         string   `toml:"auth_token"`
	Workers           int      `toml:"workers"`
	JobTimeoutSeconds int64    `toml:"job_timeout_seconds"`
	DBPath            string   `toml:"db_path"`
	SecurityMode      string   `toml:"security_mode"`
	CorsOrigins       []string `toml:"cors_origins"`
}

// JobTimeout is the per-job run budget as a duration.
func (c DaemonConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "gridmeshd"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":7600"
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":7601"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.JobTimeoutSeconds == 0 {
		cfg.JobTimeoutSeconds = 60
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/jobs.db"
	}
	if cfg.SecurityMode == "" {
		cfg.SecurityMode = "development"
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

// LoadStudy reads a study file and returns it with defaults applied.
func LoadStudy(path string) (simulation.Study, error) {
	var study simulation.Study
	if err := loadToml(path, &study); err != nil {
		return simulation.Study{}, err
	}
	study = study.WithDefaults()
	if err := simulation.ValidateStudy(study); err != nil {
		return simulation.Study{}, err
	}
	return study, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("daemon config missing name")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("daemon config missing listen_addr")
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("daemon config missing admin_addr")
	}
	if cfg.ListenAddr == cfg.AdminAddr && !ephemeralPort(cfg.ListenAddr) {
		return fmt.Errorf("daemon config listen_addr and admin_addr collide on %s", cfg.ListenAddr)
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return fmt.Errorf("daemon config missing auth_token")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("daemon config workers must be at least 1")
	}
	if cfg.JobTimeoutSeconds < 1 {
		return fmt.Errorf("daemon config job_timeout_seconds must be positive")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("daemon config missing db_path")
	}
	if cfg.SecurityMode != "development" {
		return fmt.Errorf("daemon config security_mode %q not supported (development only)", cfg.SecurityMode)
	}
	return nil
}

// ephemeralPort reports whether addr asks the OS for a free port, in
// which case two listeners on the same addr string cannot collide.
func ephemeralPort(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port == "0"
}
