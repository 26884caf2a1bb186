// Package llm wraps the generative-language API used for symptom predictions
// and the assistant chat.
//
// All traffic goes through a single request.Executor, so retry and backoff
// behavior is uniform across both flows. The package owns the prompt text,
// the structured-output schema for predictions, and the lenient decoding of
// model JSON (code fences, prose wrapping).
package llm
