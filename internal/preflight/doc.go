// Package preflight provides readiness checks for the filesystem paths and
// external binaries convertbot depends on.
//
// These checks run in three contexts:
//   - Workspace creation calls DirectoryWritable and FreeBytes before every
//     conversion so a full or read-only staging disk fails fast.
//   - The bot runtime runs RunAll and CheckSystemDeps once at startup.
//   - The CLI "convertbot status" command renders the same results.
package preflight
