package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/keymend.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/keymend.log"`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8400"`

	// AdminToken protects the admin API. An empty token with AuthDisabled=false
	// rejects every request, which is the safe default for a fresh deploy.
	AdminToken   string `envconfig:"ADMIN_TOKEN" default:""`
	AuthDisabled bool   `envconfig:"AUTH_DISABLED" default:"false"`

	// ReconcileSchedule is a cron expression for periodic repair runs.
	// Empty disables the schedule; runs can still be triggered via the API.
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:""`
	ReconcileOnStart  bool   `envconfig:"RECONCILE_ON_START" default:"true"`

	// ReconcileRunHistory caps how many run reports are kept in the database.
	ReconcileRunHistory int `envconfig:"RECONCILE_RUN_HISTORY" default:"50"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("KEYMEND", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
