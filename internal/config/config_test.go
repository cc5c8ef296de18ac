package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/gridmesh/internal/simulation"
	"github.com/danmuck/gridmesh/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadStudyAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "study.toml", `
name = "mesh"

[[nodes]]
name = "plant"

[[nodes.productions]]
name = "hydro"
cost = 10
quantity = 15

[[nodes.links]]
dest = "town"
capacity = 20
cost = 2

[[nodes]]
name = "town"

[[nodes.consumptions]]
name = "demand"
cost = 1000
quantity = 10

[[nodes.links]]
dest = "plant"
capacity = 20
cost = 2
`)

	study, err := LoadStudy(path)
	if err != nil {
		t.Fatalf("load study: %v", err)
	}
	if study.Name != "mesh" || len(study.Nodes) != 2 {
		t.Fatalf("unexpected study: %+v", study)
	}
	if study.Lot != simulation.DefaultLot || study.QuietMillis != simulation.DefaultQuietMillis {
		t.Fatalf("expected defaults, got lot=%d quiet=%d", study.Lot, study.QuietMillis)
	}
	if study.Nodes[0].Productions[0].Name != "hydro" || study.Nodes[1].Links[0].Dest != "plant" {
		t.Fatalf("unexpected nodes: %+v", study.Nodes)
	}
}

func TestLoadStudyRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadStudy(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	broken := writeFile(t, "broken.toml", `name = [unclosed`)
	if _, err := LoadStudy(broken); err == nil {
		t.Fatalf("expected parse error")
	}

	dangling := writeFile(t, "dangling.toml", `
name = "mesh"

[[nodes]]
name = "plant"

[[nodes.links]]
dest = "nowhere"
capacity = 5
cost = 0
`)
	if _, err := LoadStudy(dangling); !errors.Is(err, simulation.ErrInvalidStudy) {
		t.Fatalf("expected ErrInvalidStudy, got %v", err)
	}
}

func TestLoadDaemonConfigDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "daemon.toml", `auth_token = "secret"`)

	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load daemon config: %v", err)
	}
	if cfg.Name != "gridmeshd" || cfg.ListenAddr != ":7600" || cfg.AdminAddr != ":7601" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Workers != 2 || cfg.JobTimeoutSeconds != 60 || cfg.DBPath != "data/jobs.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SecurityMode != "development" {
		t.Fatalf("unexpected security mode: %q", cfg.SecurityMode)
	}
}

func TestValidateDaemonConfigRejects(t *testing.T) {
	testlog.Start(t)
	base := DaemonConfig{
		Name:              "gridmeshd",
		ListenAddr:        ":7600",
		AdminAddr:         ":7601",
		AuthToken:         "secret",
		Workers:           2,
		JobTimeoutSeconds: 60,
		DBPath:            "data/jobs.db",
		SecurityMode:      "development",
	}
	if err := ValidateDaemonConfig(base); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*DaemonConfig)
	}{
		{"missing token", func(c *DaemonConfig) { c.AuthToken = " " }},
		{"missing listen addr", func(c *DaemonConfig) { c.ListenAddr = "" }},
		{"colliding addrs", func(c *DaemonConfig) { c.AdminAddr = c.ListenAddr }},
		{"zero workers", func(c *DaemonConfig) { c.Workers = 0 }},
		{"zero timeout", func(c *DaemonConfig) { c.JobTimeoutSeconds = 0 }},
		{"missing db path", func(c *DaemonConfig) { c.DBPath = "" }},
		{"tls mode", func(c *DaemonConfig) { c.SecurityMode = "mutual-tls" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := ValidateDaemonConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateDaemonConfigAllowsEphemeralAddrs(t *testing.T) {
	testlog.Start(t)
	cfg := DaemonConfig{
		Name:              "gridmeshd",
		ListenAddr:        "127.0.0.1:0",
		AdminAddr:         "127.0.0.1:0",
		AuthToken:         "secret",
		Workers:           1,
		JobTimeoutSeconds: 30,
		DBPath:            "data/jobs.db",
		SecurityMode:      "development",
	}
	if err := ValidateDaemonConfig(cfg); err != nil {
		t.Fatalf("ephemeral addrs should validate: %v", err)
	}
}

func TestStudyJSONRoundTrip(t *testing.T) {
	testlog.Start(t)
	study := simulation.Study{
		Name: "mesh",
		Nodes: []simulation.NodeSpec{
			{
				Name:        "plant",
				Productions: []simulation.ProductionSpec{{Name: "hydro", Cost: 10, Quantity: 15}},
				Links:       []simulation.LinkSpec{{Dest: "town", Capacity: 20, Cost: 2}},
			},
			{
				Name:         "town",
				Consumptions: []simulation.ConsumptionSpec{{Name: "demand", Cost: 1000, Quantity: 10}},
				Links:        []simulation.LinkSpec{{Dest: "plant", Capacity: 20, Cost: 2}},
			},
		},
	}

	data, err := EncodeStudyJSON(study)
	if err != nil {
		t.Fatalf("encode study: %v", err)
	}
	parsed, err := ParseStudyJSON(data)
	if err != nil {
		t.Fatalf("parse study: %v", err)
	}
	if parsed.Name != "mesh" || parsed.Lot != simulation.DefaultLot {
		t.Fatalf("unexpected parsed study: %+v", parsed)
	}
	if len(parsed.Nodes) != 2 || parsed.Nodes[1].Consumptions[0].Quantity != 10 {
		t.Fatalf("unexpected nodes: %+v", parsed.Nodes)
	}
}

func TestParseStudyJSONRejects(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseStudyJSON([]byte(`{broken`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseStudyJSON([]byte(`{"name":""}`)); !errors.Is(err, simulation.ErrInvalidStudy) {
		t.Fatalf("expected ErrInvalidStudy, got %v", err)
	}
}

func TestTemplatesLoadCleanly(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	studyPath := filepath.Join(dir, "study.toml")
	if err := WriteTemplate(studyPath, "study", false); err != nil {
		t.Fatalf("write study template: %v", err)
	}
	study, err := LoadStudy(studyPath)
	if err != nil {
		t.Fatalf("template study should load: %v", err)
	}
	if len(study.Nodes) != 3 {
		t.Fatalf("unexpected template nodes: %d", len(study.Nodes))
	}

	daemonPath := filepath.Join(dir, "daemon.toml")
	if err := WriteTemplate(daemonPath, "daemon", false); err != nil {
		t.Fatalf("write daemon template: %v", err)
	}
	if _, err := LoadDaemonConfig(daemonPath); err != nil {
		t.Fatalf("template daemon config should load: %v", err)
	}

	if err := WriteTemplate(studyPath, "study", false); err == nil ||
		!strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
	if err := WriteTemplate(studyPath, "study", true); err != nil {
		t.Fatalf("forced overwrite should succeed: %v", err)
	}
	if _, err := Template("mesh"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
