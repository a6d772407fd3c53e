// Package query provides a small filter AST over the event log tables
// and compiles it to parameterized SQLite.
//
// Reports and the CLI never build SQL strings from user input. They
// build a Query value, validate it against the table registry, and
// compile it. Two rules hold for every compiled statement:
//
//  1. Values are always bound parameters, never interpolated.
//  2. Every statement carries the table's stable ORDER BY key, so the
//     same log always produces rows in the same order.
//
// The predicate surface is deliberately small: Eq, Ne, Gt, Lt, Since
// and And. Since is ordering-aware: it compares against the table's
// sequence column, whatever that column is named.
package query
