package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Milvus    Milvus    `yaml:"milvus"`
	Model     Model     `yaml:"model"`
	Embedding Embedding `yaml:"embedding"`
	RAG       RAG       `yaml:"rag"`
	Storage   Storage   `yaml:"storage"`
	MQ        MQ        `yaml:"mq"`
	JWT       JWT       `yaml:"jwt"`
}

type Server struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type Milvus struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Model configures the generation providers. OllamaCloud is skipped when its
// API key is absent; OpenAI is skipped when its key is absent.
type Model struct {
	OllamaModel       string `yaml:"ollama_model"`
	OllamaLocalURL    string `yaml:"ollama_local_url"`
	OllamaCloudURL    string `yaml:"ollama_cloud_url"`
	OllamaCloudAPIKey string `yaml:"ollama_cloud_api_key"`
	OpenAIModel       string `yaml:"openai_model"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
}

type Embedding struct {
	ServerURL string `yaml:"server_url"`
	Model     string `yaml:"model"`
}

type RAG struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

// Storage selects where uploaded document content lives. Mode is "oss" or
// "local"; the ingestion pipeline fetches content back through the same mode.
type Storage struct {
	Mode  string `yaml:"mode"`
	Local Local  `yaml:"local"`
	OSS   OSS    `yaml:"oss"`
}

type Local struct {
	Dir string `yaml:"dir"`
}

type OSS struct {
	Region          string `yaml:"region"`
	BucketName      string `yaml:"bucket_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
}

// MQ configures the RocketMQ ingestion transport. When Enabled is false the
// server falls back to an in-process worker pool.
type MQ struct {
	Enabled    bool     `yaml:"enabled"`
	NameServer []string `yaml:"name_server"`
}

type JWT struct {
	SecretKey string `yaml:"secret_key"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: Server{
			Host:     "0.0.0.0",
			Port:     "8000",
			LogLevel: "info",
		},
		Model: Model{
			OllamaModel:    "phi3",
			OllamaLocalURL: "http://localhost:11434",
			OllamaCloudURL: "https://api.ollama.ai",
			OpenAIModel:    "gpt-4-turbo-preview",
		},
		Embedding: Embedding{
			ServerURL: "http://localhost:11434",
			Model:     "all-minilm",
		},
		RAG: RAG{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
		},
		Storage: Storage{
			Mode:  "local",
			Local: Local{Dir: "uploads"},
		},
	}
}

// Secrets can be supplied through the environment instead of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_CLOUD_API_KEY"); v != "" {
		cfg.Model.OllamaCloudAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Model.OpenAIAPIKey = v
	}
	if v := os.Getenv("MILVUS_API_KEY"); v != "" {
		cfg.Milvus.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("OSS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.OSS.AccessKeyID = v
	}
	if v := os.Getenv("OSS_ACCESS_KEY_SECRET"); v != "" {
		cfg.Storage.OSS.AccessKeySecret = v
	}
}
