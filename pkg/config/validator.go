package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.OpenAI.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "openai.api_key",
			Message: "OpenAI API key is required",
		})
	}

	if c.OpenAI.MaxTokens < 1 || c.OpenAI.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "openai.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "openai.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.OpenAI.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "openai.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if _, err := url.Parse(c.Logseq.APIURL); err != nil || c.Logseq.APIURL == "" {
		errors = append(errors, ValidationError{
			Field:   "logseq.api_url",
			Message: "invalid Logseq API URL",
		})
	}

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "PostgreSQL connection string is required",
		})
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Chat.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "chat.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Chat.HistoryTurns < 2 || c.Chat.HistoryTurns%2 != 0 {
		errors = append(errors, ValidationError{
			Field:   "chat.history_turns",
			Message: "history_turns must be a positive even number",
		})
	}

	return errors
}
