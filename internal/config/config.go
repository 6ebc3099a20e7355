package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合服务端与聊天客户端的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Auth   AuthConfig
	Client ClientConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Auth:   auth,
		Client: client,
		Log:    LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	IntentLLMEnabled   bool
	IntentHistoryLimit int
}

// Enabled 表示是否提供了模型与必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark model configuration missing: set Model plus ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	intentEnabled, err := parseBoolEnv("AI_INTENT_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	intentHistory := 6
	if historyOverride, err := parseOptionalIntEnv("AI_INTENT_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		if *historyOverride < 1 {
			intentHistory = 1
		} else {
			intentHistory = *historyOverride
		}
	}

	return AIConfig{
		APIKey:             strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:          strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:          strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:              strings.TrimSpace(os.Getenv("Model")),
		BaseURL:            getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:             getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:        temperature,
		TopP:               topP,
		MaxTokens:          maxTokens,
		IntentLLMEnabled:   intentEnabled,
		IntentHistoryLimit: intentHistory,
	}, nil
}

// AuthConfig 描述可接受的访问令牌与用户的对应关系。
type AuthConfig struct {
	Tokens map[string]string
}

func loadAuthConfig() (AuthConfig, error) {
	tokens, err := parseTokenMap(os.Getenv("CHAT_AUTH_TOKENS"))
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{Tokens: tokens}, nil
}

// parseTokenMap 解析 "token=user,token2=user2" 格式。
func parseTokenMap(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, "=")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid CHAT_AUTH_TOKENS entry %q: want token=user", pair)
		}
		tokens[token] = user
	}
	return tokens, nil
}

// ClientConfig 描述聊天客户端连接后端的方式。
type ClientConfig struct {
	APIURL            string
	WebSocketURL      string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HTTPTimeout       time.Duration
	Language          string
	GuestStorePath    string
}

func loadClientConfig() (ClientConfig, error) {
	attempts := 5 // 默认重连5次
	if override, err := parseOptionalIntEnv("CHAT_RECONNECT_ATTEMPTS"); err != nil {
		return ClientConfig{}, err
	} else if override != nil {
		if *override < 0 {
			attempts = 0
		} else {
			attempts = *override
		}
	}

	delay, err := parseDurationEnv("CHAT_RECONNECT_DELAY", time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	timeout, err := parseDurationEnv("CHAT_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		APIURL:            strings.TrimRight(getEnvOrDefault("CHAT_API_URL", "http://localhost:8080/api"), "/"),
		WebSocketURL:      getEnvOrDefault("CHAT_WS_URL", "ws://localhost:8080/api/ws"),
		ReconnectAttempts: attempts,
		ReconnectDelay:    delay,
		HTTPTimeout:       timeout,
		Language:          getEnvOrDefault("CHAT_LANGUAGE", "en"),
		GuestStorePath:    getEnvOrDefault("CHAT_GUEST_STORE", defaultGuestStorePath()),
	}, nil
}

func defaultGuestStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tourchat", "guest.yaml")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
