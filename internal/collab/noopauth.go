package collab

import "context"

// NoopAuthenticator is the default Authenticator: request signing is out
// of scope for this core, so it always succeeds.
type NoopAuthenticator struct{}

var _ Authenticator = NoopAuthenticator{}

func (NoopAuthenticator) Verify(_ context.Context, _, _ string) error {
	return nil
}
