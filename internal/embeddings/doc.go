// Package embeddings turns text into vectors through a pluggable provider.
//
// Three providers are available:
//   - openai: the OpenAI embeddings API via langchaingo (default)
//   - tei: a Text Embeddings Inference server through its OpenAI-compatible route
//   - fastembed: local ONNX models (cgo builds only)
//
// Every provider records generation duration, batch size and errors as
// OpenTelemetry metrics.
package embeddings
