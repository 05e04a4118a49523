// Package stream converts backend-specific streaming responses into the
// canonical client-facing event stream.
//
// A Pipeline is an ordered chain of stages assembled per completion.
// Each stage consumes a byte stream and a shared Context and produces a
// byte stream; stages run in registration order, and each stage's flush
// output flows through the stages after it. The usual assembly is
//
//	Init -> ErrorTransformer(Formatter) -> PostProcessing -> Closing
//
// where the Formatter performs the SSE reassembly (line splitting,
// dialect dispatch, tool-call reconstruction) and PostProcessing runs
// the side-effecting end-of-stream steps (moderation, memory capture,
// persistence, tool invocation).
package stream
