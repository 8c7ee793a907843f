// Package event defines the triggering events that instantiate runs.
package event

import "strings"

// Event names, used as the run's recorded trigger.
const (
	Push             = "push"
	WorkflowDispatch = "workflow_dispatch"
)

// PushEvent is a received push notification. Fields mirror the webhook
// payload; anything the orchestrator does not interpret stays out.
type PushEvent struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Repository string `json:"repository"`
	Sender     string `json:"sender"`
}

// Branch returns the branch name with the refs/heads/ prefix stripped.
// Non-branch refs (tags, etc.) return empty, which matches no pattern.
func (e PushEvent) Branch() string {
	const prefix = "refs/heads/"
	if !strings.HasPrefix(e.Ref, prefix) {
		return ""
	}
	return strings.TrimPrefix(e.Ref, prefix)
}
