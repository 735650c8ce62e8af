// Package board implements a squares-board fundraiser: provisioning boards
// of 100 numbered squares, rendering their public state, and claiming
// squares for participants.
//
// No component keeps state between calls. All coordination between
// concurrent claimants happens through the version token on each square
// row: a square is reserved only by a write that presents the version read
// moments earlier, so two claimants racing for the same square cannot both
// succeed.
//
// Errors returned by [Reader], [Claimer] and [Provisioner] are classified
// by the kinds [ErrBadRequest], [ErrNotFound], [ErrInvalidState],
// [ErrConflict] and [ErrStore]. Conflicts carry the unavailable square ids
// in [Error.Taken].
package board
