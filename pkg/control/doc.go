/*
Package control implements C6. Run ticks the reconciler on loop-interval and
CleanupStalled on a slower, independent 10x cadence.

Each tick lists observed pools, tears down any whose keep-alive entry is
stale (aborting the tick on a teardown failure so classification doesn't
advance past it), publishes the surviving set through KnownPools, lists
broker queues, and feeds C4 an observation for every queue without a
surviving pool.
*/
package control
