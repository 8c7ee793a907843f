// Package workflow defines the on-disk workflow document: the YAML model,
// strict parsing, file discovery, branch pattern compilation, and structural
// validation. Nothing in this package executes anything; it produces a
// validated description the rest of the system runs.
package workflow
