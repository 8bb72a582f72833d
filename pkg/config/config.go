package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	OpenAI struct {
		APIKey         string  `yaml:"api_key"`
		BaseURL        string  `yaml:"base_url"`
		Model          string  `yaml:"model"`
		EmbeddingModel string  `yaml:"embedding_model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
		ChatPrompt     string  `yaml:"chat_prompt"`
		MaxAttempts    int     `yaml:"max_attempts"`
		RateLimit      float64 `yaml:"rate_limit"`
	} `yaml:"openai"`

	Logseq struct {
		APIURL   string `yaml:"api_url"`
		APIToken string `yaml:"api_token"`
	} `yaml:"logseq"`

	Database struct {
		URL            string `yaml:"url"`
		FragmentTable  string `yaml:"fragment_table"`
		WatermarkTable string `yaml:"watermark_table"`
		VectorDim      int    `yaml:"vector_dim"`
		BatchSize      int    `yaml:"batch_size"`
	} `yaml:"database"`

	Chunker struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Chat struct {
		TopK         int  `yaml:"top_k"`
		HistoryTurns int  `yaml:"history_turns"`
		Streaming    bool `yaml:"streaming"`
		// Pointer so an absent key can default to true.
		IncludeLinked *bool `yaml:"include_linked_pages"`
	} `yaml:"chat"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/logseq-rag/config.yaml"),
			"/etc/logseq-rag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.OpenAI.BaseURL == "" {
		config.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if config.OpenAI.Model == "" {
		config.OpenAI.Model = "gpt-3.5-turbo"
	}
	if config.OpenAI.EmbeddingModel == "" {
		config.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if config.OpenAI.MaxTokens == 0 {
		config.OpenAI.MaxTokens = 1000
	}
	if config.OpenAI.Temperature == 0 {
		config.OpenAI.Temperature = 1.0
	}
	if config.OpenAI.MaxAttempts == 0 {
		config.OpenAI.MaxAttempts = 7
	}
	if config.OpenAI.RateLimit == 0 {
		config.OpenAI.RateLimit = 5.0
	}

	if config.Logseq.APIURL == "" {
		config.Logseq.APIURL = "http://127.0.0.1:12315"
	}

	if config.Database.FragmentTable == "" {
		config.Database.FragmentTable = "fragments"
	}
	if config.Database.WatermarkTable == "" {
		config.Database.WatermarkTable = "page_watermarks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 200
	}

	if config.Chat.TopK == 0 {
		config.Chat.TopK = 6
	}
	if config.Chat.HistoryTurns == 0 {
		config.Chat.HistoryTurns = 6
	}
	if config.Chat.IncludeLinked == nil {
		linked := true
		config.Chat.IncludeLinked = &linked
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if apiURL := os.Getenv("LOGSEQ_API_URL"); apiURL != "" {
		config.Logseq.APIURL = apiURL
	}
	if token := os.Getenv("LOGSEQ_API_TOKEN"); token != "" {
		config.Logseq.APIToken = token
	}
}
