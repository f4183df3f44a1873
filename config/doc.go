// Package config loads fixturefeed settings from an optional YAML file and
// FIXTUREFEED_* environment variables, resolves secret references, and
// converts the result into the option structs of the other packages.
//
// Environment variables name keys with dots replaced by underscores, so
// upstream.api_key is FIXTUREFEED_UPSTREAM_API_KEY.
package config
