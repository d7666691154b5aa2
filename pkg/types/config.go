// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Defaults shared by the CLI, the config file, and the services.
const (
	DefaultTopK          = 6
	DefaultFloor         = 0.3
	DefaultThreshold     = 8.0
	DefaultMaxIterations = 5
	DefaultStepRetries   = 2
	DefaultChunkTokens   = 500
	DefaultChunkOverlap  = 50
	DefaultModel         = "gpt-4o-mini"
)

// CorpusConfig locates the embedding artifacts and the raw documents they
// were built from.
type CorpusConfig struct {
	// EmbeddingsPath is the .npy matrix with one row per chunk.
	EmbeddingsPath string `json:"embeddings_path" yaml:"embeddings_path" mapstructure:"embeddings_path"`

	// MetadataPath is the JSON-lines file row-aligned with the matrix.
	MetadataPath string `json:"metadata_path" yaml:"metadata_path" mapstructure:"metadata_path"`

	// RawDir holds the origin documents addressed by ChunkMetadata.Source.
	RawDir string `json:"raw_dir" yaml:"raw_dir" mapstructure:"raw_dir"`

	// ChunkTokens is the window size used when chunking documents (default 500).
	ChunkTokens int `json:"chunk_tokens" yaml:"chunk_tokens" mapstructure:"chunk_tokens"`

	// ChunkOverlap is the token overlap between consecutive windows (default 50).
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap" mapstructure:"chunk_overlap"`

	// DocumentCacheSize bounds the number of normalised documents kept in memory.
	DocumentCacheSize int `json:"document_cache_size" yaml:"document_cache_size" mapstructure:"document_cache_size"`
}

// RetrievalConfig holds the default search parameters.
type RetrievalConfig struct {
	// TopK is the maximum number of passages returned (default 6).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// Floor is the minimum cosine similarity a passage must reach (default 0.3).
	Floor float64 `json:"floor" yaml:"floor" mapstructure:"floor"`

	// RewriteQuery turns the brief into a keyword query before embedding.
	RewriteQuery bool `json:"rewrite_query" yaml:"rewrite_query" mapstructure:"rewrite_query"`
}

// EmbeddingConfig configures the query and indexing embedder.
type EmbeddingConfig struct {
	// BaseURL points at an OpenAI-compatible embeddings endpoint.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// Dimensions requests a specific vector size when the model supports it.
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`

	// APIKey authenticates against the endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Provider selects the backend: claude, openai, or auto.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Fallback names a second provider tried when the first one fails.
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty" mapstructure:"fallback"`

	// Model is the AI model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout bounds a single generation request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// RequestsPerMinute caps outbound generation calls (0 = unlimited).
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// PromptsDir holds optional prompt override files.
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir" mapstructure:"prompts_dir"`
}

// RefinementConfig holds the draft/critique loop settings.
type RefinementConfig struct {
	// Threshold is the critique score that accepts a draft (default 8.0).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// MaxIterations caps the number of drafts (default 5).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`

	// HumanInLoop pauses after each unaccepted critique for editor input.
	HumanInLoop bool `json:"human_in_loop" yaml:"human_in_loop" mapstructure:"human_in_loop"`

	// StepRetries is the number of extra attempts for a failing step (default 2).
	StepRetries int `json:"step_retries" yaml:"step_retries" mapstructure:"step_retries"`
}

// JournalConfig locates the session journal.
type JournalConfig struct {
	// Dir contains journal.db and exports.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// Config groups every stage configuration.
type Config struct {
	Corpus     CorpusConfig     `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	AI         AIConfig         `json:"ai" yaml:"ai" mapstructure:"ai"`
	Refinement RefinementConfig `json:"refinement" yaml:"refinement" mapstructure:"refinement"`
	Journal    JournalConfig    `json:"journal" yaml:"journal" mapstructure:"journal"`
}

// ApplyDefaults fills unset fields with the documented defaults. Floor,
// Threshold, and StepRetries are meaningful at zero and are left alone; their
// defaults come from the config loader.
func (c *Config) ApplyDefaults() {
	if c.Corpus.EmbeddingsPath == "" {
		c.Corpus.EmbeddingsPath = "data/vectors/embeddings.npy"
	}
	if c.Corpus.MetadataPath == "" {
		c.Corpus.MetadataPath = "data/vectors/metadata.jsonl"
	}
	if c.Corpus.RawDir == "" {
		c.Corpus.RawDir = "data/raw"
	}
	if c.Corpus.ChunkTokens <= 0 {
		c.Corpus.ChunkTokens = DefaultChunkTokens
	}
	if c.Corpus.ChunkOverlap < 0 || c.Corpus.ChunkOverlap >= c.Corpus.ChunkTokens {
		c.Corpus.ChunkOverlap = DefaultChunkOverlap
	}
	if c.Corpus.DocumentCacheSize <= 0 {
		c.Corpus.DocumentCacheSize = 256
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "auto"
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 2 * time.Minute
	}
	if c.AI.PromptsDir == "" {
		c.AI.PromptsDir = "prompts"
	}
	if c.Refinement.MaxIterations <= 0 {
		c.Refinement.MaxIterations = DefaultMaxIterations
	}
	if c.Refinement.StepRetries < 0 {
		c.Refinement.StepRetries = DefaultStepRetries
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "output/journal"
	}
}
