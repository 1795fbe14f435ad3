// Package internaldefs holds the metric families shared by the exporters.
//
// A [Family] maps several engine counters onto one exported name split by a
// label. Both exporters read the same tables, so a rename here changes every
// exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
