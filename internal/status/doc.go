// Package status reports locker state upstream.
//
// Two emission paths feed the same sinks: an immediate on-change path
// driven by command completion and unsolicited hardware status, and a
// periodic path that re-emits lockers whose state has not been
// confirmed within the report interval. Duplicates across the two
// paths are tolerated by the backend and never filtered here.
package status
