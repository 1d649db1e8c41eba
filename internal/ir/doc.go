// Package ir provides the intermediate representation of routine definitions.
//
// The compiler turns CUE routine files into ir.Routine values; the compiler
// then binds those to action trees. ir imports nothing internal, so every
// other package can depend on it.
//
// Key design constraints:
//   - Argument values are a sealed set (String, Int, Number, Bool, List,
//     Object); there is no null
//   - Canonical JSON (sorted keys, NFC strings) is the only serialization
//     used for content hashes
//   - All JSON tags use snake_case
package ir
