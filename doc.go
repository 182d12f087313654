// Package authgate is an authentication gateway: it verifies caller identity
// across multiple credential strategies (long-lived API token, server-side
// session, local password, federated identity), manages the password
// lifecycle, and enforces account suspension on every path.
//
// Strategies:
//   - Resolver exposes one operation per credential strategy. Each returns an
//     AuthDecision with the resolved user and a staleness hint, or a typed
//     denial carrying a stable text code. Suspended accounts are rejected by
//     every strategy regardless of credential correctness.
//   - RegistrationEngine creates local accounts with uniqueness enforcement
//     and signs in federated identities idempotently, relying on repository
//     unique constraints as the authoritative guard against races.
//   - Lifecycle handles password reset, password change, and username change,
//     each re-verifying the current credential before mutating state.
//
// Storage and sessions are external collaborators: Users is a Bun-backed
// repository contract, SessionStore maps opaque session ids to user ids
// (a Redis implementation lives in the session subpackage), and Notifier
// delivers out-of-band email best-effort, never on the response path.
package authgate
