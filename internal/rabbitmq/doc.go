// Package rabbitmq wraps amqp091-go with the connection handling the
// RabbitMQ transport needs.
//
// It provides:
//   - ConnectionManager: a connection with automatic reconnection and state listeners
//   - ChannelPool: reusable channels for short topology operations
//   - Publisher: confirmed publishing with retries over a dedicated channel
//   - Consumer: per-queue consumers with ack on success and nack on error
//   - TopologyManager: exchange, queue and binding declarations
package rabbitmq
