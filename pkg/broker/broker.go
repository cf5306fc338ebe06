// Package broker implements C2, the AMQP 0-9-1 interactions scoped to the
// configured pool prefix: enumerating pool queues, declaring them with an
// optional policy, and deleting them. The connection itself is owned and
// supervised by the Reconnect Supervisor (pkg/reconnect); this package only
// ever borrows it to open a fresh channel per operation, as §4.2 requires
// ("must not hold a channel across a suspension that spans a reconnect").
package broker

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/log"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
	"github.com/rs/zerolog"
)

// Client is the broker-facing collaborator used by C5 and C6.
type Client struct {
	conn       *amqp.Connection
	poolPrefix string
	logger     zerolog.Logger

	// management lists queues; AMQP 0-9-1 itself has no broker-wide list
	// operation, so this mirrors what RabbitMQ's own tooling does.
	management *managementClient
}

// New wraps an already-open AMQP connection. The connection's lifetime is
// owned by the Reconnect Supervisor, not by this Client.
func New(conn *amqp.Connection, poolPrefix string, mgmt *managementClient) *Client {
	return &Client{
		conn:       conn,
		poolPrefix: poolPrefix,
		logger:     log.WithComponent("broker"),
		management: mgmt,
	}
}

// Dial opens a new AMQP connection to uri. Callers (C7) own the returned
// connection's lifetime.
func Dial(uri string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, corerr.Wrap(corerr.BrokerUnavailable, "dialing amqp broker", err)
	}
	return conn, nil
}

func (c *Client) channel() (*amqp.Channel, error) {
	if c.conn == nil || c.conn.IsClosed() {
		return nil, corerr.New(corerr.BrokerUnavailable, "amqp connection is closed")
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, corerr.Wrap(corerr.BrokerUnavailable, "opening amqp channel", err)
	}
	return ch, nil
}

// ListPoolQueues enumerates broker queues whose name starts with
// "<pool-prefix>-" and strips the prefix to recover each tenant key.
func (c *Client) ListPoolQueues(ctx context.Context) ([]types.QueueRecord, error) {
	names, err := c.management.listQueueNames(ctx)
	if err != nil {
		return nil, corerr.Wrap(corerr.BrokerOperation, "listing broker queues", err)
	}

	prefix := c.poolPrefix + "-"
	out := make([]types.QueueRecord, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, types.QueueRecord{
			TenantKey: types.TenantKey(strings.TrimPrefix(name, prefix)),
			QueueName: name,
		})
	}
	return out, nil
}

// DeclareRequestQueue creates the tenant's queue if absent, applying the
// optional per-queue policy. Idempotent: redeclaring with identical
// arguments is a no-op on the broker.
func (c *Client) DeclareRequestQueue(_ context.Context, tenantKey types.TenantKey, policy types.QueuePolicy) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	args := amqp.Table{}
	if policy.MessageTTL > 0 {
		args["x-message-ttl"] = int64(policy.MessageTTL / 1_000_000) // ms
	}
	if policy.MaxLength > 0 {
		args["x-max-length"] = policy.MaxLength
	}
	if policy.MaxLengthBytes > 0 {
		args["x-max-length-bytes"] = policy.MaxLengthBytes
	}

	_, err = ch.QueueDeclare(
		c.queueName(tenantKey),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return corerr.Wrap(corerr.BrokerOperation, "declaring queue", err)
	}
	return nil
}

// DeleteQueue removes the tenant's queue; it is idempotent and succeeds if
// the queue is already absent.
func (c *Client) DeleteQueue(_ context.Context, tenantKey types.TenantKey) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDelete(c.queueName(tenantKey), false, false, false); err != nil {
		if isNotFound(err) {
			return nil
		}
		return corerr.Wrap(corerr.BrokerOperation, "deleting queue", err)
	}
	return nil
}

func (c *Client) queueName(tenantKey types.TenantKey) string {
	return fmt.Sprintf("%s-%s", c.poolPrefix, tenantKey)
}

func isNotFound(err error) bool {
	var amqpErr *amqp.Error
	if e, ok := err.(*amqp.Error); ok {
		amqpErr = e
	}
	return amqpErr != nil && amqpErr.Code == amqp.NotFound
}
