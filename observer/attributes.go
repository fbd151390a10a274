package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for loop observability spans and metrics.
var (
	AttrThreadID  = attribute.Key("loop.thread_id")
	AttrRunID     = attribute.Key("loop.run_id")
	AttrStreamer  = attribute.Key("loop.streamer")
	AttrInjected  = attribute.Key("loop.injected")
	AttrForked    = attribute.Key("loop.forked")
	AttrKind      = attribute.Key("loop.message_kind")
	AttrFunction  = attribute.Key("loop.function")
	AttrChunks    = attribute.Key("loop.stream_messages")
	AttrTokensIn  = attribute.Key("loop.tokens.input")
	AttrTokensOut = attribute.Key("loop.tokens.output")
	AttrStatus    = attribute.Key("loop.status")
)
