package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	LLM       LLMConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	Crisis    CrisisConfig
	Feedback  FeedbackConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type MilvusConfig struct {
	Enabled        bool
	Endpoint       string
	CollectionName string
}

type LLMConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type ChunkingConfig struct {
	Window  int
	Overlap int
}

type RetrievalConfig struct {
	TopK int
}

type ChatConfig struct {
	HistoryWindow int
}

type CrisisConfig struct {
	HighSignals []string
	LowSignals  []string
}

type FeedbackConfig struct {
	SafetyConcernThreshold int
	TrainingOverallGate    float64
	TrainingSafetyGate     int
	ClusterSize            int
	ClusterWindowDays      int
	JobIntervalMinutes     int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/mindease")

	viper.SetEnvPrefix("MINDEASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that would corrupt the index or the
// safety path before any component is constructed.
func (c *Config) Validate() error {
	if c.LLM.EmbeddingDim <= 0 {
		return fmt.Errorf("invalid config: llm.embeddingDim must be positive, got %d", c.LLM.EmbeddingDim)
	}
	if c.Chunking.Window <= 0 {
		return fmt.Errorf("invalid config: chunking.window must be positive, got %d", c.Chunking.Window)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Window {
		return fmt.Errorf("invalid config: chunking.overlap must be in [0, window), got %d", c.Chunking.Overlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid config: retrieval.topK must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Chat.HistoryWindow <= 0 {
		return fmt.Errorf("invalid config: chat.historyWindow must be positive, got %d", c.Chat.HistoryWindow)
	}
	if c.Feedback.SafetyConcernThreshold < 1 || c.Feedback.SafetyConcernThreshold > 5 {
		return fmt.Errorf("invalid config: feedback.safetyConcernThreshold must be in [1,5], got %d", c.Feedback.SafetyConcernThreshold)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/mindease.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 168)

	viper.SetDefault("milvus.enabled", false)
	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "mindease_chunks")

	viper.SetDefault("llm.provider", "mistral")
	viper.SetDefault("llm.baseURL", "https://api.mistral.ai/v1")
	viper.SetDefault("llm.model", "mistral-small-latest")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 512)
	viper.SetDefault("llm.timeoutSec", 20)
	viper.SetDefault("llm.embeddingModel", "all-MiniLM-L6-v2")
	viper.SetDefault("llm.embeddingDim", 384)

	viper.SetDefault("chunking.window", 200)
	viper.SetDefault("chunking.overlap", 50)

	viper.SetDefault("retrieval.topK", 5)

	viper.SetDefault("chat.historyWindow", 10)

	viper.SetDefault("crisis.highSignals", []string{
		"suicide", "kill myself", "end my life", "want to die", "hurt myself",
		"self harm", "cutting", "overdose", "jump off", "hang myself",
		"suicidal", "better off dead",
	})
	viper.SetDefault("crisis.lowSignals", []string{
		"hopeless", "worthless", "no reason to live", "give up", "can't go on",
	})

	viper.SetDefault("feedback.safetyConcernThreshold", 2)
	viper.SetDefault("feedback.trainingOverallGate", 4.0)
	viper.SetDefault("feedback.trainingSafetyGate", 4)
	viper.SetDefault("feedback.clusterSize", 5)
	viper.SetDefault("feedback.clusterWindowDays", 7)
	viper.SetDefault("feedback.jobIntervalMinutes", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
