// Package batch rewrites ChangeSets of row-level changes into the fewest
// equivalent DML Statements.
//
// Planning and rendering are separate steps. Optimizer.Plan inspects a
// ChangeSet and chooses one of three Plan variants:
//
//   - InsertBatch: one multi-row INSERT of all rows of an INSERT ChangeSet,
//     where every row writes the same columns.
//   - DeleteBatch: one DELETE ... WHERE pk IN (...) of all rows of a DELETE
//     ChangeSet, where the table has a single-column primary key.
//   - RowByRow: one statement per row. This is the baseline which each bulk
//     form must remain equivalent to, and it's chosen whenever a bulk form
//     doesn't apply. Falling back is never an error.
//
// Optimizer.Render then deterministically renders a Plan into Statements of
// SQL text and bound arguments. Values are bound under the same rules on
// every path: negative values of unsigned columns are corrected to their
// unsigned magnitude, blob columns bind as []byte, and "now" placeholders
// bind as the current time (or as zero, for integer columns).
//
// The package does no I/O.
package batch
