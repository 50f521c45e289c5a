// Package orchestrator runs the model/tool conversation loop behind every
// assistant reply.
//
// # Overview
//
// A run starts from a user query and a Session (sender and receiver phone
// numbers). The loop asks the ModelInvoker for the next step; the model either
// answers with text, which ends the run, or asks for one tool, which the
// ToolDispatcher executes. The invocation and its result are appended to the
// conversation and the model is asked again.
//
// # Termination
//
// Every run ends in one of three states:
//
//	DONE(text)      the model answered; Result.Text is its answer
//	DONE(fallback)  the iteration budget ran out; Result.Text is FallbackMessage
//	DONE(error)     the model backend failed; Result.Text is ErrorMessage
//
// Tool failures never end a run. Unknown tools, bad arguments, handler errors
// and dispatch timeouts are recorded as error results so the model can recover
// or explain.
//
// # Observation
//
// A Recorder sees every model call, dispatch, and final state. A UsageSink
// receives each finished Result with its summed token Usage.
//
// # Usage
//
//	orch := orchestrator.New(orchestrator.Config{
//		Invoker:    invoker,
//		Dispatcher: router,
//		Logger:     logger,
//	})
//	res, err := orch.Run(ctx, query, orchestrator.Session{
//		SenderPhone:   "+15550001",
//		ReceiverPhone: "+15550002",
//	}, orchestrator.DefaultMaxIterations)
package orchestrator
