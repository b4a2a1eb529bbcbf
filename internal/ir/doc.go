// Package ir provides the intermediate representation of a hybrid-dynamics
// model class for dyngen.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps IR
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Symbol identity is the composite key (Category, Name), never a bare name
//   - A ModelClass is immutable once compiled; generation only reads it
//   - Every collection that reaches generated code has a deterministic order
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding
//     used for content hashes
package ir
