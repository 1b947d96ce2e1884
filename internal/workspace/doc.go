// Package workspace owns the per-request staging directories a conversion
// runs in.
//
// Each Open creates a fresh directory named after the UTC time and a random
// UUID under the staging root, so concurrent conversions never share files.
// Release removes it exactly once; removal failures are logged and counted,
// never returned. SweepStale and List cover directories left behind by a crash.
package workspace
