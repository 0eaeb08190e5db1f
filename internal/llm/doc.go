// Package llm provides language model clients used to classify and extract
// fields from transaction messages. It supports Gemini, OpenAI and Anthropic
// behind a single Complete call.
package llm
