// Package usage keeps the append-only token usage ledger. One record is
// written per successfully completed upstream call; summaries and
// per-request details are served over trailing day windows. Ledger rows
// survive user deletion so past consumption stays accountable.
package usage
