/*
Package identity manages local user accounts and their API keys.

Accounts are created by administrators or provisioned just-in-time on the
first valid JWT login. Group memberships are stored on the user record;
once a user exists, the stored groups win over whatever a token claims.

API keys are bearer credentials prefixed with "sk-". The plaintext is
returned once at creation; only a SHA-256 hash is persisted, and
authentication is a hash lookup plus active/expiry checks. Deleting a
user removes their keys but deliberately keeps token usage rows for
accounting.
*/
package identity
