// Package harness runs monitoring scenarios end to end.
//
// A scenario declares monitors, a sequence of steps (events pushed to a
// trace, reviews, remediation triggers, resets) and assertions over the
// outcome. Every run uses a fresh in-memory store, a deterministic clock
// and sequential audit ids, so the same scenario always produces the same
// violation ids and byte-identical golden snapshots.
//
// # Scenario Format
//
//	name: no_admin_login
//	description: "admin logins are blocked and reviewed"
//	specs:
//	  - monitors.cue            # optional CUE files, relative to the scenario
//	monitors:
//	  - id: no-admin
//	    trace: http
//	    formula: "G(!login('admin'))"
//	    violation_formula: "F(logout('admin'))"
//	    control: realtime
//	steps:
//	  - event: "{login('bob')}"
//	  - event: "{login('admin')}"
//	    expect:
//	      blocked: true
//	      violations: [no-admin]
//	      verdicts: { no-admin: false }
//	  - audit: { monitor: no-admin, step: 1, verdict: ILLEGITIMATE, comment: "intrusion" }
//	  - remediate: { monitor: no-admin, step: 1 }
//	assertions:
//	  - type: violation_steps
//	    monitor: no-admin
//	    steps: [1]
//	  - type: review_status
//	    monitor: no-admin
//	    step: 1
//	    status: ILLEGITIMATE
//
// Events default to the http trace. A violation is addressed by its
// monitor and the trace step it was raised at.
//
// # Assertion Types
//
//   - verdict: final verdict of a monitor
//   - violation_count: number of violations recorded for a monitor
//   - violation_steps: trace steps of those violations, in order
//   - review_status: review status of one violation
//   - blocked_count: number of events blocked on a trace
//   - monitor_enabled: whether a monitor is still evaluating
package harness
