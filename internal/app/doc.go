// Package app contains the core application wiring. It defines the main App
// struct, its configuration, and the primary execution lifecycles (one-shot
// runs and the long-lived server), decoupled from any specific entrypoint
// like a CLI.
package app
