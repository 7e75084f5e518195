// Package dirty decides which declarations an edit to a syntax tree makes
// stale. Everything here is pure: functions read the pre-mutation image of
// the tree and report declarations through callbacks, never touching the
// tree or any shared state.
package dirty
