/*
Package driver and its subpackages (containerd, kubernetes, processsup,
noop) implement C1, the polymorphic container-platform abstraction.

Each variant is keyed by tenant key rather than any platform-native name:
GetOrCreatePool is idempotent ("look up by label/PID map, else create"),
DestroyPool is idempotent, ListPools enumerates everything the variant
manages for this deployment, and CleanupStalled does a best-effort sweep of
orphans on a slower cadence than the main reconciliation loop.

New builds whichever variant config.Config.Driver selects.
*/
package driver
