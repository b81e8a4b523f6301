// Package config handles loading and validating Wormbot Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// This is the application configuration (which hardware backend, where the
// broker lives, which pins the mount uses). Periphery parameters such as
// servo bounds are persisted separately by the periphery registry as JSON.
//
// Security Considerations:
//   - Broker credentials and tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Hardware.Backend)
package config
