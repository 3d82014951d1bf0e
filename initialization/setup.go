package initialization

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"videoHighlights/config"
	"videoHighlights/processors"
	"videoHighlights/retrieval"
	"videoHighlights/storage"
)

// SystemInitializer 按配置组装存储、流水线与查询服务
type SystemInitializer struct {
	configPath string
	// storeOverride 命令行指定的存储后端，优先于配置文件
	storeOverride string
}

// NewSystemInitializer 创建系统初始化器
func NewSystemInitializer(configPath, storeOverride string) *SystemInitializer {
	return &SystemInitializer{configPath: configPath, storeOverride: storeOverride}
}

// InitializationResult 初始化结果
type InitializationResult struct {
	Config   *config.Config
	Store    storage.Gateway
	Pipeline *processors.HighlightPipeline
	Engine   *retrieval.Engine
	Chat     *retrieval.ChatService
}

// InitializeSystem 初始化整个系统，失败时释放已创建的资源
func (si *SystemInitializer) InitializeSystem(ctx context.Context) (*InitializationResult, error) {
	// 1. 加载配置
	log.Println("正在加载配置...")
	cfg, err := config.Load(si.configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if si.storeOverride != "" {
		cfg.Store = si.storeOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	if !cfg.HasValidAPI() {
		log.Println("未配置 API_KEY：描述使用模板文本，向量检索不可用")
		config.PrintConfigInstructions(os.Stderr)
	}
	return si.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig 使用已加载的配置初始化
func (si *SystemInitializer) InitializeWithConfig(ctx context.Context, cfg *config.Config) (*InitializationResult, error) {
	// 2. 初始化存储
	log.Printf("正在初始化存储 (%s)...", cfg.Store)
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	store, err := storage.Open(openCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	// 3. 初始化处理流水线
	log.Println("正在初始化处理流水线...")
	clients := processors.NewModelClients(cfg)
	pipeline := processors.BuildPipeline(cfg, clients, store)

	// 4. 初始化检索服务
	log.Println("正在初始化检索服务...")
	engine := retrieval.NewEngine(store, clients.Embedder)
	chat := retrieval.NewChatService(engine, cfg.MaxResultsCap)

	log.Println("系统初始化完成")
	return &InitializationResult{
		Config:   cfg,
		Store:    store,
		Pipeline: pipeline,
		Engine:   engine,
		Chat:     chat,
	}, nil
}

// Cleanup 释放存储连接
func (r *InitializationResult) Cleanup() {
	if r == nil || r.Store == nil {
		return
	}
	if err := r.Store.Close(); err != nil {
		log.Printf("关闭存储失败: %v", err)
	}
}
