// Package config loads adjunct-gateway configuration.
//
// # File Formats
//
// Files ending in .toml are decoded as TOML; anything else is YAML. Both
// formats share the same keys.
//
// # Environment Variables
//
// ${VAR_NAME} anywhere in the file is replaced with the variable's value
// before parsing. Unset variables expand to an empty string, which keeps
// secrets such as model.api_key and auth.jwt_secret out of the file:
//
//	model:
//	  api_key: "${ANTHROPIC_API_KEY}"
//
// # Durations
//
// Duration fields (server.shutdown_timeout, model.timeout,
// orchestrator.tool_timeout) accept Go duration strings like "30s" or "2m".
//
// # Location
//
// DefaultPath resolves the file in this order:
//
//  1. ADJUNCT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/adjunct/gateway.yaml
//  3. ~/.config/adjunct/gateway.yaml
//
// The -config flag of adjunct-gateway overrides all of them.
//
// # Defaults
//
// Load fills in defaults before validating: five orchestrator iterations,
// a 30s tool timeout, a 60s model timeout, two model retries, SMTP port 587
// when mail is enabled, and text logging at info level. server.http_addr and
// database.path are required.
package config
