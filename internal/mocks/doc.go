// Package mocks provides hand-written in-memory implementations of the
// persistence and collaborator interfaces for use in unit tests. The stores
// clone entities on the way in and out so a failed transition cannot leak
// partial mutations into stored state, matching the apply-or-abort behavior
// of the real database-backed stores.
package mocks
