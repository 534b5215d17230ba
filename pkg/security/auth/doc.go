/*
Package auth resolves request credentials into principals.

Two credential shapes are accepted, tried in order:

 1. API key: an sk- prefixed key (optionally behind a Bearer scheme) is
    SHA-256 hashed and looked up in storage. A valid key yields a
    principal with the owning user's identity and groups, and stamps the
    key's last_used_at.

 2. Bearer JWT: RS256 tokens verify against the RSA public key of a
    Keycloak realm, fetched from {url}/realms/{realm} and cached; HS256
    tokens verify against a shared secret. The username comes from the
    first non-empty claim of preferred_username, username, name, sub.
    Groups are the union of the groups claim, realm_access.roles, and
    every resource_access.<client>.roles, unless a stored user row
    exists, in which case its groups win.

# Basic Usage

Wire a resolver and middleware into the server:

	keys := auth.NewKeycloakKeys(auth.KeycloakConfig{
		URL:   "https://sso.example.com",
		Realm: "platform",
	}, httpClient, logger)

	resolver := auth.NewResolver(auth.Config{
		JITProvisioning: true,
	}, identityService, keys, logger)

	middleware := auth.NewMiddleware(resolver, logger)
	http.Handle("/v1/", middleware.Handle(apiHandler))

Inside a handler, read the authenticated caller:

	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	fmt.Printf("request from %s (groups: %v)\n", p.Username, p.Groups)

# Caching

Resolved JWT principals are cached per username (default 5 minutes) so
the stored-group lookup does not hit the database on every request;
token signatures are still verified each time. Realm public keys are
cached (default 1 hour) behind a singleflight group, and a stale key is
reused when Keycloak cannot be reached. InvalidateUser and
RefreshFromStore expose cache eviction for the whoami force-refresh
flow.

# Development Mode

With development mode enabled, requests without credentials resolve to
a synthetic principal in the admin group. Never enable it in
production.
*/
package auth
