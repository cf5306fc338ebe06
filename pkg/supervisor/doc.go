/*
Package supervisor implements C5. Each tenant key gets one logical task,
serialized through a per-tenant mutex (invariant I1) but running concurrently
with every other tenant's task.

Ensure drives new → queue-ready → running; Teardown drives running →
stopping → done. Both retry transient failures with bounded, jittered
backoff and feed a shared error counter that — on reaching the configured
ceiling — closes the channel returned by Fatal, signalling the process
should exit per §7.
*/
package supervisor
