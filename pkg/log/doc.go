/*
Package log provides the structured logging used across the reconciliation
core: a package-level zerolog.Logger, initialized once via Init, and
component-scoped child loggers obtained through WithComponent.

Typical use:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("supervisor")
	logger.Info().Str("tenant_key", key).Msg("pool created")

Fields beyond component - tenant_key, instance_id, and the like - are added
inline at each log call rather than through dedicated factories, since which
ones apply depends on the event: a tick failure has no tenant_key to report,
a pool-creation failure does.
*/
package log
