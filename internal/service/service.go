// Package service 装配全部业务服务
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	duckduckgov2 "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/concierge-ai/internal/config"
	"github.com/ashwinyue/concierge-ai/internal/repository"
	"github.com/ashwinyue/concierge-ai/internal/serpapi"
	"github.com/ashwinyue/concierge-ai/internal/service/chat"
	"github.com/ashwinyue/concierge-ai/internal/service/genai"
	"github.com/ashwinyue/concierge-ai/internal/service/tools"
	"github.com/ashwinyue/concierge-ai/internal/service/workflow"
)

// Services 服务集合
type Services struct {
	Chat     *chat.Service
	Workflow *workflow.Service
	GenAI    *genai.Service

	Config *config.Config
	Search *serpapi.Client
	Tools  *tools.Registry
}

// NewServices 创建所有服务
// 工具注册表在启动时校验一次，配置缺陷直接失败
func NewServices(repo *repository.Repositories, cfg *config.Config, redisClient *redis.Client) (*Services, error) {
	ctx := context.Background()

	genaiSvc, err := genai.NewService(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai service: %w", err)
	}

	chatModel, err := genai.NewChatModel(ctx, &cfg.AI, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	searchClient := serpapi.New(cfg.SerpAPI)
	if !searchClient.Configured() {
		log.Printf("Warning: serpapi api key not configured, search tools will return errors")
	}

	registry, err := tools.NewRegistry(ctx, tools.Deps{
		Profiles:  repo.Profile,
		Messages:  repo.Chat,
		Search:    searchClient,
		Gen:       genaiSvc,
		WebSearch: newWebSearchTool(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	workflowSvc := workflow.NewService(cfg.Workflow, repo.Chat, redisClient)

	chatSvc := chat.NewService(chat.Config{
		Chats:       repo.Chat,
		Profiles:    repo.Profile,
		Titles:      genaiSvc,
		ChatModel:   chatModel,
		Tools:       registry,
		Workflow:    workflowSvc,
		TurnTimeout: time.Duration(cfg.Server.TurnTimeout) * time.Second,
	})

	return &Services{
		Chat:     chatSvc,
		Workflow: workflowSvc,
		GenAI:    genaiSvc,

		Config: cfg,
		Search: searchClient,
		Tools:  registry,
	}, nil
}

// newWebSearchTool 创建礼物搜索阶段使用的网络搜索工具
func newWebSearchTool(ctx context.Context) einotool.InvokableTool {
	searchTool, err := duckduckgov2.NewTextSearchTool(ctx, &duckduckgov2.Config{
		ToolName:   "web_search",
		ToolDesc:   "Search the web for current information using DuckDuckGo.",
		MaxResults: 10,
	})
	if err != nil {
		log.Printf("Warning: failed to create web search tool: %v", err)
		return nil
	}
	return searchTool
}
