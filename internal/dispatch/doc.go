// Package dispatch invokes the external callees a job delegates to. Jobs
// with `uses` are POSTed to a dispatch endpoint that runs the referenced
// reusable workflow; jobs with `run` execute a local shell script. Both
// paths treat the callee as opaque: parameters out, result in.
package dispatch
