// Package services defines shared utilities consumed by the conversion
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp conversation IDs, pair keys, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     consistently across the catalog, workspace, transcoder, and session code.
//
// Component sentinels wrap one of these markers so callers can match either
// the precise failure or its broad class with errors.Is.
package services
