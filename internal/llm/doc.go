// Package llm provides the fallback categorizer that asks a language model to pick a budget
// category for a transaction. It supports OpenRouter, OpenAI, Anthropic and Gemini providers
// behind a registry, with rate limiting, response caching and strict response validation.
package llm
