package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig
	Azure      AzureConfig
	History    HistoryConfig
	Log        LogConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// AzureConfig holds the Azure AI Foundry project configuration.
// The remote agent is enabled only when both ProjectEndpoint and
// ModelDeployment are set; otherwise the relay falls back to echo mode.
type AzureConfig struct {
	ProjectEndpoint string `mapstructure:"project_endpoint"`
	ModelDeployment string `mapstructure:"model_deployment"`
	APIKey          string `mapstructure:"api_key"`
	APIVersion      string `mapstructure:"api_version"`
	AgentName       string `mapstructure:"agent_name"`
	Instructions    string `mapstructure:"instructions"`
}

// HistoryConfig holds the conversation history configuration
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Supported MCP client transport types.
const (
	ClientTypeSSE            = "sse"
	ClientTypeStreamableHTTP = "streamable_http"
	ClientTypeStdio          = "stdio"
)

// MCPServerConfig holds the configuration of a single MCP server whose tools
// are exposed to the remote agent.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// Configured reports whether the remote agent service should be used.
func (c AzureConfig) Configured() bool {
	return c.ProjectEndpoint != "" && c.ModelDeployment != ""
}

// Load loads the configuration from an optional config.yaml (or the file
// named by CONFIG_PATH) and from the environment. Environment variables take
// precedence over file values. A .env file in the working directory is
// honored when present.
func Load() (*Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3978")
	v.SetDefault("azure.api_version", "2024-05-01-preview")
	v.SetDefault("azure.agent_name", "SimpleChatAgent")
	v.SetDefault("azure.instructions", "You are a helpful assistant. Be concise and friendly.")
	v.SetDefault("history.db_path", "history.db")
	v.SetDefault("log.level", "info")

	bindings := map[string]string{
		"server.host":            "SERVER_HOST",
		"server.port":            "SERVER_PORT",
		"azure.project_endpoint": "AZURE_AI_PROJECT_ENDPOINT",
		"azure.model_deployment": "AZURE_AI_MODEL_DEPLOYMENT_NAME",
		"azure.api_key":          "AZURE_AI_API_KEY",
		"azure.api_version":      "AZURE_AI_API_VERSION",
		"azure.agent_name":       "AZURE_AI_AGENT_NAME",
		"azure.instructions":     "AZURE_AI_AGENT_INSTRUCTIONS",
		"history.db_path":        "HISTORY_DB_PATH",
		"log.level":              "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// The config file is optional; env-only setups are fine.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
