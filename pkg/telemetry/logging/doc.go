// Package logging builds the process logger: a log/slog handler chain
// selected by configuration (JSON or text, level-filtered), wrapped so
// that credential-shaped values are masked before they reach the sink
// and records carry trace correlation IDs when a span is active.
//
// Components never see this package's types; Setup installs the result
// as the slog default and everything downstream works with a plain
// *slog.Logger, usually scoped via With("component", ...).
package logging
