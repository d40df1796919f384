// Package legacy hands requests to the legacy dispatcher.
//
// A Bridge translates the original request path with a pathrewrite.Rule,
// resolves a handler for the translated path through a Dispatcher and
// serves it either straight onto the client connection (ModeStreaming) or
// into a capture.Recorder (ModeCapturing) so later stages can rewrite the
// response.
//
// Two dispatchers are provided: MuxDispatcher for a legacy http.ServeMux
// running in the same process and ProxyDispatcher for a legacy server
// reached over HTTP.
package legacy
