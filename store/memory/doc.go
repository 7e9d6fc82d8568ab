// Package memory is an in-process implementation of every deskauth store.
//
// It honours the same conflict and versioning rules as store/postgres and is
// meant for tests and local development. Data does not survive a restart.
package memory
