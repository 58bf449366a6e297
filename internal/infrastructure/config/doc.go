// Package config handles loading and validating ctaggregate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CTAGG_* environment variables
//   - Validation of required fields
//   - Default value handling (levels, phases, reference keywords, sidecar fields)
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Aggregation.SearchDir)
package config
