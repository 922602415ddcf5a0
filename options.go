package ragdex

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	assemblyuc "github.com/kailas-cloud/ragdex/internal/usecase/assembly"
	chatuc "github.com/kailas-cloud/ragdex/internal/usecase/chat"
	chunkinguc "github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver   string // "valkey" or "redis"
	addrs    []string
	password string

	keyPrefix string

	embedder  Embedder
	completer Completer

	model            string
	vectorDimensions int
	metric           string
	algorithm        string
	hnswM            int
	hnswEFConstruct  int

	chunkStrategy string
	chunkSize     int
	chunkOverlap  int
	chunkMaxChars int

	defaultIndex string
	topK         int

	window  int
	persist bool

	instructions string
	budgetChars  int

	logger *zap.Logger
}

func defaultClientConfig() *clientConfig {
	vec := domain.DefaultVectorConfig()
	return &clientConfig{
		keyPrefix:        domain.KeyPrefix,
		model:            vec.Model,
		vectorDimensions: vec.Dimensions,
		metric:           vec.DistanceMetric,
		algorithm:        vec.Algorithm,
		chunkStrategy:    string(chunkinguc.StrategyFixedWindow),
		chunkSize:        chunkinguc.DefaultChunkSize,
		chunkOverlap:     chunkinguc.DefaultOverlap,
		chunkMaxChars:    chunkinguc.DefaultMaxChars,
		defaultIndex:     "default",
		topK:             chatuc.DefaultTopK,
		window:           conversationuc.DefaultWindow,
		budgetChars:      assemblyuc.DefaultBudgetChars,
	}
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithKeyPrefix overrides the key namespace shared by every record the
// client writes. Default: "ragdex:".
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithEmbedder sets the text embedding provider.
// Required for ingest and retrieval; index management works without it.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithCompleter sets the language model used to answer questions.
// Required for Chat; ingest and retrieval work without it.
func WithCompleter(cp Completer) Option {
	return func(c *clientConfig) {
		c.completer = cp
	}
}

// WithModel records the embedding model name on index definitions.
// Defaults to all-MiniLM-L6-v2.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithVectorDimensions sets the vector dimension for new indexes.
// Defaults to 384 (all-MiniLM-L6-v2).
func WithVectorDimensions(dim int) Option {
	return func(c *clientConfig) {
		c.vectorDimensions = dim
	}
}

// WithMetric sets the distance metric for new indexes:
// "cosine" (default), "l2" or "ip".
func WithMetric(metric string) Option {
	return func(c *clientConfig) {
		c.metric = metric
	}
}

// WithAlgorithm sets the vector index algorithm for new indexes:
// "flat" (default) or "hnsw".
func WithAlgorithm(algorithm string) Option {
	return func(c *clientConfig) {
		c.algorithm = algorithm
	}
}

// WithHNSW configures HNSW index parameters (M and EF construction).
// Defaults: M=32, EFConstruct=400.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithChunking sets the chunking strategy ("fixed_window" or
// "sentence_bound") and the window geometry. Defaults: fixed_window, 200/50.
func WithChunking(strategy string, chunkSize, overlap int) Option {
	return func(c *clientConfig) {
		c.chunkStrategy = strategy
		c.chunkSize = chunkSize
		c.chunkOverlap = overlap
	}
}

// WithDefaultIndex names the index Chat and ingest fall back to when the
// caller does not name one. Default: "default".
func WithDefaultIndex(name string) Option {
	return func(c *clientConfig) {
		if name != "" {
			c.defaultIndex = name
		}
	}
}

// WithTopK sets how many context chunks a question retrieves by default.
func WithTopK(k int) Option {
	return func(c *clientConfig) {
		c.topK = k
	}
}

// WithWindow sets how many exchanges each conversation keeps for prompt
// replay. Negative keeps everything. Default: 5.
func WithWindow(n int) Option {
	return func(c *clientConfig) {
		c.window = n
	}
}

// WithPersistence makes the conversation log durable. The database must be
// reachable at construction time.
func WithPersistence() Option {
	return func(c *clientConfig) {
		c.persist = true
	}
}

// WithInstructions replaces the built-in grounding preamble of assembled
// prompts.
func WithInstructions(text string) Option {
	return func(c *clientConfig) {
		c.instructions = text
	}
}

// WithContextBudget caps the assembled context size in characters.
// Negative disables the cap. Default: 6000.
func WithContextBudget(chars int) Option {
	return func(c *clientConfig) {
		if chars != 0 {
			c.budgetChars = chars
		}
	}
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
