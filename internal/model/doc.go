// Package model defines the persistent entities of the orchestrator: runs,
// job runs, and their status enums. The structs carry both json and db tags
// so the same types travel through the HTTP API and the sqlx store.
package model
