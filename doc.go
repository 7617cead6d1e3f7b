// Package auth provides an embeddable credential and token lifecycle engine
// (password hashing, JWT access tokens, rotating refresh tokens, password-reset
// and magic-link flows) plus the ownership hooks that scope generic record
// collections to the authenticated user.
//
// Storage:
//   - The package persists its users and tokens through the RecordStore
//     contract, a thin create/get/query/update/delete surface over whatever
//     data repository hosts the embedding application. The memstore package
//     ships an in-process implementation used by tests and examples.
//
// Token lifecycle:
//   - Access tokens are short-lived signed JWTs, never persisted. Session
//     revocation happens through the refresh token table: every refresh token
//     is stored hashed with a per-token salt, rotates on use, and is bulk
//     deleted when a password changes.
//   - Password-reset and magic-link tokens are single-use. Reset tokens keep at
//     most one live row per user; magic-link tokens are removed before the
//     login response is built so a concurrent replay can never succeed twice.
//
// Ownership:
//   - OwnedCollection applies five extension points (pre-list, post-read,
//     pre-create, pre-update, pre-delete) around record CRUD so a stored row is
//     only ever visible to the user recorded as its owner. Custom hooks compose
//     after the ownership checks and can never bypass them.
package auth
