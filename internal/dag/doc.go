// Package dag models the dependency graph between the jobs of one workflow.
// The graph is built from `needs` edges, validated to be acyclic, and handed
// to the executor which walks it concurrently.
package dag
