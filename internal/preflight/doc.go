// Package preflight provides readiness checks for the directories, tools and
// remote services recap depends on. The "recap doctor" command renders every
// result; a failed check carries a short detail suitable for that output.
package preflight
