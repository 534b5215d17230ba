/*
Package httpclient builds outbound HTTP clients for upstream LLM providers
and auxiliary services (Keycloak, Azure management, audit forwarders).

Each client carries connection pooling, a dial timeout, TLS customization
(custom CA bundles, client certificates, or verification opt-out), and
proxy support. Proxy selection follows enterprise conventions: an explicit
proxy URL wins; otherwise HTTPS_PROXY/HTTP_PROXY are consulted and NO_PROXY
entries can exempt hosts by exact name, domain suffix, or CIDR range.
Credentials embedded in a proxy URL are extracted into a Proxy-Authorization
header and the URL is scrubbed before use.

	client, err := httpclient.New(httpclient.Config{
		TargetURL:      "https://api.openai.com/v1",
		ConnectTimeout: 10 * time.Second,
		Timeout:        120 * time.Second,
	})
*/
package httpclient
