/*
Package keepalive implements C3 against Redis: GET and DEL on
"<prefix>/<tenant-key>", where the value is a Unix-seconds timestamp written
by workers (out of scope here) on every successfully handled message.

IsStale is a pure staleness check (now minus last-seen greater than the
timeout). The control loop applies the same rule inline rather than calling
it.
*/
package keepalive
