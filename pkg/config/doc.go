// Package config loads the analytics service configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by INTERNHUB_CONFIG_FILE, then INTERNHUB_* environment
// variables. The binary loads a .env file into the environment first.
//
// Common variables:
//
//	INTERNHUB_ENV="production"                  # development, staging, production, test
//	INTERNHUB_DATABASE_URL="postgres://..."
//	INTERNHUB_DATABASE_REPLICA_URLS="postgres://r1/...,postgres://r2/..."
//	INTERNHUB_REDIS_URL="redis://localhost:6379/0"  # empty: in-process queue
//	INTERNHUB_ANALYTICS_INTERVAL_MINUTES="15"   # default 5 in development, 60 in staging/production
//	INTERNHUB_ANALYTICS_RETENTION_DAYS="365"    # 0 disables ledger cleanup
//	INTERNHUB_LOG_LEVEL="debug"
//	INTERNHUB_OTEL_ENABLED="true"
//
// YAML keys mirror the struct tags:
//
//	env: production
//	database:
//	  url: postgres://analytics@db/internhub
//	analytics:
//	  batch_size: 20
//	  batch_delay: 250ms
package config
