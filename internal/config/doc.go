// Package config loads, normalizes, and validates recap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as GEMINI_API_KEY and OPENAI_API_KEY. The Config
// type centralizes every knob the CLI and pipeline need so chunking, retry,
// and audit policy are decided in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
