// Package config handles loading and validating the Baby Buddy bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and Baby Buddy entries
//   - Default value handling (including the 60 second scan interval)
//
// Security Considerations:
//   - The Baby Buddy API key should be set via GRAYLOGIC_BABYBUDDY_API_KEY
//   - The config file should have restricted permissions (0600)
//   - The JWT secret guards write access to the Baby Buddy server through the API
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, entry := range cfg.BabyBuddy.Entries {
//	    fmt.Println(entry.ID, entry.GetScanInterval())
//	}
package config
