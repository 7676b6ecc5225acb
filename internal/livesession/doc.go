// Package livesession owns the single live emulator session: one trace link,
// its importer, and a keep-alive supervisor.
//
// A Manager is an explicit handle; callers that start or stop streaming share
// the same instance rather than reaching for process-wide state.
package livesession
