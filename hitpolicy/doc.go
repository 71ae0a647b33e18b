// Package hitpolicy resolves the matching rules of a decision table into its
// final result according to the table's DMN hit policy.
//
// Everything here is pure computation over already evaluated rules: condition
// evaluation, table parsing and storage live in other packages. Failures are
// reported as *Error values whose message starts with a stable DMN-030xx code.
package hitpolicy
