// Package board describes the static 40-space track shared by every game.
//
// A Board is immutable once parsed. The classic layout is embedded in the
// binary and parsed exactly once; alternative layouts can be parsed from YAML
// and must pass Validate before use.
//
// Usage:
//
//	b := board.Classic()
//	space := b.SpaceAt(39) // Boardwalk
package board
