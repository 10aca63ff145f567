// Package stream implements the real-time path: a persistent, authenticated
// WebSocket session with the gateway.
//
// The endpoint is derived from the configured ingest URL (http becomes ws, https
// becomes wss, and /ws/stream is appended). Every connection starts with one auth
// frame:
//
//	{"type":"auth","api_key":"...","workspace":"..."}
//
// The client does not wait for an acknowledgement. Text frames are decoded into
// events and handed to the caller's EventSink. Undecodable frames are logged and
// skipped, and sink errors never close the connection. Pings are answered with a
// pong carrying the same payload.
//
// A close frame from the gateway, whatever its status code, ends ConnectAndStream
// with a nil error. Any other failure, including dial errors, discards the
// connection and reconnects after the fixed reconnect interval, without limit:
//
//	c, err := stream.New(cfg, stream.SinkFunc(func(ctx context.Context, ev event.Event) error {
//		fmt.Println(ev)
//		return nil
//	}))
//	if err != nil {
//		return err
//	}
//	return c.ConnectAndStream(ctx)
package stream
