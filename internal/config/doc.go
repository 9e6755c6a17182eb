// Package config provides configuration loading and validation for the Riva
// transcriptor service. It layers an optional YAML file and CML environment
// overrides (RIVA_BASE_URL, CDSW_APP_PORT) on top of built-in defaults.
package config
