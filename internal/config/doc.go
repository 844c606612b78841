// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// so database passwords and refresh tokens can stay out of the file.
package config
