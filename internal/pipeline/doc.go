// Package pipeline implements the interception chain.
//
// A Chain is an ordered list of stages around a terminal handler. Every
// handler returns an Outcome: a response, a not-found signal or an error.
// Forwarding stages react to the not-found signal by trying the legacy
// dispatcher; everything else travels upward unchanged. The response
// returned by SentResponse marks output that already reached the client.
package pipeline
