// Package llm turns raw bank-alert text into structured transaction
// candidates using an LLM provider. The provider is an untrusted oracle:
// its output goes through a tolerant parser and the pipeline's validity
// gate before anything is persisted.
package llm
