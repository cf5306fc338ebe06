/*
Package broker implements C2: AMQP 0-9-1 interactions scoped to the
configured pool prefix. Client borrows a connection owned by
pkg/reconnect, opening a fresh channel per operation and never holding one
across a suspension that could span a reconnect.

ListPoolQueues enumerates queues via the RabbitMQ management HTTP API (AMQP
itself has no "list all queues" operation), filters to the configured
prefix, and recovers each tenant key from the queue name suffix.
DeclareRequestQueue and DeleteQueue are both idempotent.
*/
package broker
