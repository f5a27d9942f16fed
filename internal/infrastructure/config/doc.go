// Package config loads and validates Homewatch Core configuration.
//
// Values come from three layers, later layers winning:
//   - built-in defaults
//   - a YAML file
//   - HOMEWATCH_* environment variables
//
// Secrets (JWT secret, broker password, InfluxDB token, bootstrap admin
// password) should be supplied through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/homewatch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
