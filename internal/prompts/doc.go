// Package prompts embeds the default transcription and audit prompts and
// loads user overrides from disk.
package prompts
