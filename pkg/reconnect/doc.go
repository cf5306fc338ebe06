/*
Package reconnect implements C7. Run owns the AMQP connection's lifetime: it
dials, builds a fresh C2 bound to the connection, then fresh C5 and C6
instances bound to that C2 (C6 also bound to the C5 built alongside it, for
direct stale-pool teardown), and waits for the first of a graceful shutdown,
a fatal error threshold in a child, or the connection closing.

A lost connection redials with growing backoff and rebuilds C5/C6 from
scratch; C3 and C4 are constructed once by the caller and passed in via
Children, so desired state survives every reconnect. A fatal threshold in a
child is a distinct, non-recoverable condition: Run returns ErrFatalThreshold
so the process can exit non-zero rather than reconnect.
*/
package reconnect
