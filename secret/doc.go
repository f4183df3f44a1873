// Package secret resolves credentials referenced from configuration.
//
// A configured value is first expanded against the environment (${VAR},
// with $$ for a literal dollar) and then, if it has the form
// secretref:<provider>:<ref>, replaced by what the named provider returns.
// Two providers are built in:
//
//	secretref:env:FIXTUREFEED_PROVIDER_KEY
//	secretref:file:/run/secrets/provider_key
//
// Resolved values are never logged.
package secret
