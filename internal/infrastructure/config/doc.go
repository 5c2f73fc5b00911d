// Package config handles loading and validating the G32 bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The Otto Wilde account password and MQTT/InfluxDB credentials should be
//     set via environment variables (G32_ACCOUNT_PASSWORD and friends)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.RelayAddress())
package config
