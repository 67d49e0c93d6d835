// Package openaicompat implements the generation backend for every
// OpenAI-compatible chat completions API.
//
// Both crmflow variants share the same wire format, so they are the same
// Provider with different defaults:
//
//   - openai: https://api.openai.com, /v1/chat/completions, gpt-4o-mini
//   - google: Gemini's OpenAI-compatible endpoint, /chat/completions, gemini-1.5-flash
//
// Usage:
//
//	p := openaicompat.NewGoogle(openaicompat.Config{
//	    APIKey:       cfg.APIKey,
//	    DefaultModel: cfg.Model,
//	}, logger)
package openaicompat
