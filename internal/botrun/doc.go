// Package botrun wires configuration, logging, the conversion pipeline and
// the Telegram poller into the long-running bot process.
//
// Only one process may poll a given token, so Run holds an advisory flock on
// the configured lock file for its whole lifetime. The optional metrics
// listener exposes Prometheus metrics on /metrics and a JSON liveness report
// on /healthz.
package botrun
