// Package storage defines the state the authorization server keeps between
// the authorize and token steps of the code flow.
//
// The only entity is AuthorizationRequest, keyed by the authorization code.
// A request is created by /authorize, replaced by a later /authorize for the
// same code, and deleted by the first successful /token redemption. Requests
// never expire.
//
// Implementations are provided in subpackages:
//   - storage/memory: mutex-guarded in-process store
package storage
