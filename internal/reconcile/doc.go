// Package reconcile converges declarative desired state against the live
// device configuration. A check fetches and parses the relevant resource
// listing, matches resources on per-type identifying keys, and reports
// MATCHES, DIFFERS, MISSING, EXTRA, or ERROR with itemized differences.
// Convergence applies the minimal create/replace/remove commands and
// re-checks with bounded retries.
package reconcile
