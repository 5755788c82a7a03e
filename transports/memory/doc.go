// Package memory provides an in-process transport for the router.
//
// A Broker connects any number of Transports. Each Transport receives every
// message published on a topic one of its patterns matches, once, in publish
// order. Retained publishes are kept per topic and replayed to new
// subscriptions, as an MQTT broker does.
//
// Example usage:
//
//	broker := memory.NewBroker()
//	transport := broker.Connect()
//	defer transport.Close()
//
//	router, err := messaging.NewRouter(transport)
package memory
