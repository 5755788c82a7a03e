// Package messaging routes publish/subscribe messages to handler chains.
//
// This package implements:
//   - Router: Subscription registry keyed by topic pattern, with dispatch of
//     each inbound message through the matching handler chains
//   - Request and Response: The inbound message and its at-most-once reply
//   - Requestor: Request/response over a temporary reply topic with a timeout
//   - Transport: The broker connection the router sits on
//
// Handlers form a chain. Each handler decides whether the message continues
// by calling next, and may pass a different Request or Response on.
//
// Example usage:
//
//	router, err := messaging.NewRouter(transport)
//	if err != nil {
//		return err
//	}
//
//	_, err = router.Subscribe(ctx, "devices/+/ping",
//		messaging.HandlerFunc(func(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
//			return res.SendString(req.Context(), `"pong"`)
//		}))
//
//	requestor, err := messaging.NewRequestor(router)
//	reply, err := requestor.Send(ctx, "devices/lamp/ping", `"hello"`)
package messaging
