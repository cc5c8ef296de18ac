package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "study":
		return studyTemplate, nil
	case "daemon":
		return daemonTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const studyTemplate = `name = "three-node-mesh"
lot = 1
quiet_millis = 150

[[nodes]]
name = "plant"

[[nodes.productions]]
name = "hydro"
cost = 10
quantity = 15

[[nodes.links]]
dest = "relay"
capacity = 20
cost = 1

[[nodes]]
name = "relay"

[[nodes.links]]
dest = "plant"
capacity = 20
cost = 1

[[nodes.links]]
dest = "town"
capacity = 20
cost = 1

[[nodes]]
name = "town"

[[nodes.consumptions]]
name = "demand"
cost = 1000
quantity = 10

[[nodes.productions]]
name = "diesel"
cost = 120
quantity = 10

[[nodes.links]]
dest = "relay"
capacity = 20
cost = 1
`

const daemonTemplate = `name = "gridmeshd"
listen_addr = ":7600"
admin_addr = ":7601"
auth_token = "temp-auth-key"
workers = 2
job_timeout_seconds = 60
db_path = "data/jobs.db"
security_mode = "development"
cors_origins = ["http://localhost:3000"]
`
