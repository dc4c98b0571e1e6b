// Package cli provides command-line interface setup and configuration
// for the danskrecall application. It handles flag parsing, command
// creation, configuration management using cobra and viper, and flag
// validation.
package cli
