/*
Package config defines the Portunus configuration model and loads it from
JSON or YAML files with environment variable overrides.

Loading follows a fixed sequence: parse the file, apply documented
defaults, apply environment overrides, validate. Well-known deployment
variables (DB_TYPE, DB_URL, KEYCLOAK_URL, KEYCLOAK_REALM, JWT_SECRET,
DEVELOPMENT_MODE) map onto specific fields; PORTUNUS_SECTION_FIELD
variables override anything else. Credential fields accept secret
references ("env:NAME", "file:/path") that are resolved at the point of
use, never at load time, so secrets are not retained in the parsed
configuration.

An optional fsnotify-based Watcher reloads model_configs when the file
changes, keeping the previous configuration on any reload error.
*/
package config
