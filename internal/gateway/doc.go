// Package gateway turns native symbols into typed, checked Go calls.
//
// A symbol is resolved once per process against a signature written in
// layout kinds. Resolution fails loudly when the library does not export the
// symbol or when the signature cannot be called, so a binary that does not
// match its library fails at startup instead of at the first call.
package gateway
