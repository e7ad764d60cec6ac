/*
Package missionseq holds what every part of the mission sequencer shares: the error taxonomy,
the cooperative interrupt flag of a run and the run configuration.

The command graph lives in package command, the dynamics in package dynamics and the event
location in package event.
*/
package missionseq

import "errors"

var (
	// ErrStructure flags a malformed command graph or model: unterminated branch, cycle,
	// missing force model, missing object store. Never retried.
	ErrStructure = errors.New("structural error")
	// ErrNumerical flags an integration failure or a non-physical parameter. Fatal for the run.
	ErrNumerical = errors.New("numerical error")
	// ErrInterrupted is returned when a run was stopped on purpose.
	ErrInterrupted = errors.New("run interrupted")
	// ErrConfig flags an invalid configuration.
	ErrConfig = errors.New("configuration error")
)
