// Package synthesis generates the sections of a business requirements
// document from a frozen snapshot of classified signals.
//
// # Flow
//
//	CreateSnapshot → six section agents (bounded worker pool) → executive summary
//
// Every agent reads the same snapshot, so signals classified while a run is in
// flight never leak into it. Each agent persists its own section version; a
// failing agent writes an error placeholder for its section and never cancels
// its siblings. The executive summary runs last because it reads the other
// sections' latest content.
//
// # Placeholders
//
// An agent whose input is empty, or below its relevance threshold, writes
// content beginning with InsufficientMarker and an empty source list instead
// of calling the model. The validator turns these into gap flags.
//
// # Locking
//
// A section whose latest version is human edited is locked. Run skips it,
// Regenerate refuses it with store.ErrSectionLocked, and only EditSection may
// write a new version.
package synthesis
