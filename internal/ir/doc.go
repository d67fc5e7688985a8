// Package ir provides the intermediate representation shared by the solforge
// builder and every backend.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps IR the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Expressions, seeds, values and ops are sealed sum types. Each has a
//     visitor interface with one method per variant, so adding a variant
//     breaks every backend at compile time until it is handled.
//   - Schemas and keyed tables are ordered. Order fixes byte layout and is
//     preserved through JSON round trips.
//   - u64 literals serialize as decimal strings.
//   - Content hashes use RFC 8785 canonical JSON with domain separation.
package ir
