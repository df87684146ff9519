// Package llm provides the language model oracles used by pantry: a vision
// extractor that turns receipt photos into raw line items and a semantic
// matcher that maps noisy item names onto catalog products. It supports
// OpenAI, Anthropic and Gemini with retry logic, rate limiting, and response
// caching.
package llm
