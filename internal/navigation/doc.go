// Package navigation supervises a trip from route selection to arrival.
//
// The [Controller] is a two-state machine:
//
//	PLANNING --StartNavigation--> ACTIVE --ExitNavigation--> PLANNING
//
// Entering ACTIVE freezes the selected route geometry and subscribes to the
// position stream. Every fix recomputes the remaining route from the nearest
// frozen vertex; a fix more than [DeviationThresholdMeters] from every vertex
// raises a deviation event, after which no further deviation fires for
// [DeviationCooldown]. The session record is written to a key-value store so
// [Controller.RestoreIfPresent] can resume an interrupted trip.
//
// Listeners receive typed events through a [Bus].
package navigation
