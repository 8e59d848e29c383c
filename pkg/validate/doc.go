/*
Package validate chains the fixed admission checks an incoming update must
pass before it reaches the aggregator: authentication, registration,
round/assignment membership, rate limiting, payload shape, and finiteness.
The first failing check determines the stable reason code returned to the
caller, mirroring the original coordinator's UpdateValidator.
*/
package validate
