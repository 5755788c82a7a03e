// Package rabbitmq implements messaging.Transport on a RabbitMQ topic
// exchange.
//
// Topics map to routing keys by turning "/" into "." and patterns map to
// binding keys by turning "+" into "*". The original topic travels in the
// x-topic header. Retain is carried as a header only; RabbitMQ does not
// store messages for late subscribers.
package rabbitmq
