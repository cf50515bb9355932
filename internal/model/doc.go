// Package model holds the algebraic building blocks that stage rules declare:
// variables, parameters, constraints and differential states, grouped into a
// Block per scenario node.
//
// Expressions are small symbolic trees. They evaluate against the current
// values of the variables and parameters they reference, and they can be
// encoded to a JSON node tree for out-of-process solvers.
package model
