// Package dedupe remembers the reply produced for a request key so that a
// retried request inside the TTL window is answered from the cache instead of
// being processed twice.
package dedupe
