// Package config loads discoveryd's process configuration from
// environment variables.
//
// The configuration surface is deliberately flat: one process, one set
// of env vars, no layered entity storage. Load applies defaults first
// and lets the environment override them.
package config
