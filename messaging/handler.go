package messaging

// Next advances a handler chain to the following handler.
//
// A nil req or res forwards the request or response the calling handler
// received. Each handler's Next advances the chain at most once; later calls,
// and calls past the end of the chain, return nil without doing anything.
type Next func(req *Request, res *Response) error

// Handler processes a routed message.
//
// A handler either calls next (now or later, from any goroutine) to pass the
// message on, or returns without calling it to stop the chain. Errors
// returned from Handle are logged by the router and do not stop later
// deliveries.
//
// Handle runs on the transport's delivery goroutine and holds up every later
// message, replies to the handler's own requests included, until it returns.
// Work that waits on other messages, such as Requestor.Send, belongs in a
// separate goroutine that calls next or res.Send when it finishes.
type Handler interface {
	Handle(req *Request, res *Response, next Next) error
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(req *Request, res *Response, next Next) error

// Handle implements Handler
func (f HandlerFunc) Handle(req *Request, res *Response, next Next) error {
	return f(req, res, next)
}

// Route pairs a pattern with its handler chain
type Route struct {
	Pattern  string
	Handlers []Handler
}

// NewRoute creates a route
func NewRoute(pattern string, handlers ...Handler) Route {
	return Route{Pattern: pattern, Handlers: handlers}
}
