// Package ir provides the JSON value tree that backs a specification document.
//
// Every package that edits or exports a specification works on ir values; ir
// imports nothing internal. This keeps the document model the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Go nil means "undefined" (absent); IRNull is an explicit JSON null
//   - Objects and arrays are reference values: nodes share them with their parent
//   - Export output is deterministic: sorted keys, NFC strings, fixed indent
//   - Keys starting with InternalKeyPrefix are back-references and never exported
package ir
