// Package config loads, normalizes, and validates convertbot configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TELEGRAM_BOT_TOKEN. The enabled conversion pairs are checked against the
// catalog at load time so an unknown pair never reaches a running bot.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
