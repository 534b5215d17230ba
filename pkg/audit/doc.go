/*
Package audit records who called what and what happened, for every
request the proxy handles.

Recording is asynchronous: middleware enqueues a Record and a single
worker persists it and fans it out to configured forwarders (structured
stdout, HTTP collectors). Audit failures are logged and counted but never
fail the audited request; under queue pressure records are dropped rather
than blocking request handling.

Operators query the trail through the admin API with filtering and
pagination, export it as JSON or CSV, and bound its growth with a
cron-scheduled retention pruner.
*/
package audit
