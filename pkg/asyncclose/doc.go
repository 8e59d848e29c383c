/*
Package asyncclose supervises round.Manager, deciding when an open round is
ready to aggregate without every assigned worker submitting, and recording
stragglers for rounds that already closed. A single background ticker, the
same shape as the teacher's scheduler loop, polls readiness and fires a
one-shot callback the first time a round becomes ready.
*/
package asyncclose
