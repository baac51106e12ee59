package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"listing-agent/internal/api"
	"listing-agent/internal/llm"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	llmCfg := llm.Config{
		BaseURL: strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL")),
	}
	if timeout := os.Getenv("OLLAMA_TIMEOUT_CONNECT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			llmCfg.ConnectTimeout = d
		}
	}
	if timeout := os.Getenv("OLLAMA_TIMEOUT_READ"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			llmCfg.ReadTimeout = d
		}
	}
	if retries := strings.TrimSpace(os.Getenv("OLLAMA_RETRIES")); retries != "" {
		if v, err := strconv.Atoi(retries); err == nil && v >= 0 {
			llmCfg.Retries = v
		}
	}

	model := strings.TrimSpace(os.Getenv("DEFAULT_MODEL"))
	if model == "" {
		model = strings.TrimSpace(os.Getenv("OLLAMA_MODEL"))
	}
	if model == "" {
		model = "qwen2.5:7b-instruct"
	}
	judgeModel := strings.TrimSpace(os.Getenv("JUDGE_MODEL"))

	verboseThreshold := 0.0
	if v := strings.TrimSpace(os.Getenv("VERBOSE_THRESHOLD")); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			verboseThreshold = parsed
		}
	}

	cfg := api.Config{
		DBPath: filepath.Join(dataDir, "listing-agent.db"),
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		LLM:              llmCfg,
		Model:            model,
		JudgeModel:       judgeModel,
		VerboseThreshold: verboseThreshold,
	}

	if override := strings.TrimSpace(os.Getenv("LISTING_AGENT_DB_PATH")); override != "" {
		cfg.DBPath = override
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5005"
	}

	logrus.Infof("starting listing-agent backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
