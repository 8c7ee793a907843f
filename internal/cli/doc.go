// Package cli defines the gridci command tree. It translates flags and
// arguments into the application's configuration, and handles process-level
// concerns like exit codes.
package cli
