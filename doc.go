// Package guardian authenticates requests with signed, stateless session
// credentials and gates logins on a small account lifecycle.
//
// Request pipeline:
//   - IdentityExtractor reads the first configured token source (cookie or
//     header) and verifies it with TokenCodec. No source means anonymous.
//   - Authorizer attaches a RequestIdentity to the request context, runs the
//     handler and, when the handler called Remember or Forget, writes or
//     clears the credential through CredentialWriter before the response is
//     committed. Framework adapters live in middleware/identityware.
//
// Accounts:
//   - AccountService registers accounts, confirms email addresses and runs the
//     password reset flow with one-time codes.
//   - LifecycleGuard evaluates login attempts (locked, reset required,
//     unconfirmed) and applies admin transitions with compare-and-set updates
//     so concurrent transitions surface as conflicts.
//   - Authenticator ties both together: Login verifies credentials and issues
//     a token, SignIn also remembers it on the current request.
//
// Activity sinks:
//   - ActivitySink receives login, logout and lifecycle events. Sinks run best
//     effort; failures are logged and never fail the operation.
package guardian
