// Package expr parses and evaluates the `${ ... }` expressions embedded in
// workflow strings: concurrency groups, `with` values, and `if` conditions.
// Expressions use HCL template syntax evaluated against cty values, so the
// same engine covers syntax checking at validate time and evaluation at run
// time.
package expr
