// Package core contains the task model, lifecycle events, error taxonomy,
// and the Store interface shared by the taskqueue packages.
package core
