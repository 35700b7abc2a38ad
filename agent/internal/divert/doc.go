// Package divert turns operator divert notifications into queryable
// per-location suspension windows.
//
// index.go holds the Index built once per analysis run: raw events are
// validated (end before start is rejected, never swapped), sorted, and
// merged when they overlap or are at most MergeGapDays apart. Overlaps and
// OverlapsRange answer inclusive date queries over the merged windows.
//
// notice.go parses one notification: the subject timestamp
// ("YYYY_MM_DD HH:MM"), the distribution system, and the
// "New Switch Line-Up:" block of "Site: Divert|Bypass" lines.
//
// periods.go rebuilds Divert→Bypass spans per location from a set of
// notices, resolving site names through a Resolver (the location table).
//
// source.go loads notices from a directory of .eml or .txt files.
package divert
