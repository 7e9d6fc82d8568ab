// Package flows holds the credential-verification state machines driven by the engine.
//
// Each Run* function takes a Deps struct of closures and returns a result
// value. Flows keep no state between calls and perform no I/O except through
// their deps, so every branch can be exercised with plain function stubs.
//
// Flows must not import the root deskauth package.
package flows
