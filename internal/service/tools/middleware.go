package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"
)

// Middlewares 返回工具节点使用的中间件组合
// 先修复模型产出的参数 JSON，再把工具错误转换为结果负载
func Middlewares() []compose.ToolMiddleware {
	return []compose.ToolMiddleware{
		newArgumentRepairMiddleware(),
		newErrorResultMiddleware(),
	}
}

// newArgumentRepairMiddleware 修复格式错误的工具参数 JSON
func newArgumentRepairMiddleware() compose.ToolMiddleware {
	return compose.ToolMiddleware{
		Invokable: func(next compose.InvokableToolEndpoint) compose.InvokableToolEndpoint {
			return func(ctx context.Context, in *compose.ToolInput) (*compose.ToolOutput, error) {
				in.Arguments = repairArguments(in.Arguments)
				return next(ctx, in)
			}
		},
		Streamable: func(next compose.StreamableToolEndpoint) compose.StreamableToolEndpoint {
			return func(ctx context.Context, in *compose.ToolInput) (*compose.StreamToolOutput, error) {
				in.Arguments = repairArguments(in.Arguments)
				return next(ctx, in)
			}
		},
	}
}

// newErrorResultMiddleware 把工具调用错误转换为模型可见的结构化结果
// 工具整体失败不应把错误抛过编排器
func newErrorResultMiddleware() compose.ToolMiddleware {
	return compose.ToolMiddleware{
		Invokable: func(next compose.InvokableToolEndpoint) compose.InvokableToolEndpoint {
			return func(ctx context.Context, in *compose.ToolInput) (*compose.ToolOutput, error) {
				output, err := next(ctx, in)
				if err != nil {
					if _, ok := compose.IsInterruptRerunError(err); ok {
						return nil, err
					}
					return &compose.ToolOutput{Result: errorResult(in.Name, err)}, nil
				}
				return output, nil
			}
		},
		Streamable: func(next compose.StreamableToolEndpoint) compose.StreamableToolEndpoint {
			return func(ctx context.Context, in *compose.ToolInput) (*compose.StreamToolOutput, error) {
				streamOutput, err := next(ctx, in)
				if err != nil {
					if _, ok := compose.IsInterruptRerunError(err); ok {
						return nil, err
					}
					return &compose.StreamToolOutput{
						Result: schema.StreamReaderFromArray([]string{errorResult(in.Name, err)}),
					}, nil
				}
				return streamOutput, nil
			}
		},
	}
}

// errorResult 构造工具失败的结构化结果串
func errorResult(toolName string, err error) string {
	payload := map[string]string{
		"error":   fmt.Sprintf("tool %s failed", toolName),
		"details": err.Error(),
	}
	b, merr := json.Marshal(payload)
	if merr != nil {
		return fmt.Sprintf(`{"error":"tool %s failed"}`, toolName)
	}
	return string(b)
}

// repairArguments 修复参数字符串
// 有效 JSON 走快速路径，其余依次尝试截取、去伪影、jsonrepair
func repairArguments(input string) string {
	s := strings.TrimSpace(input)

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && json.Valid([]byte(s)) {
		return s
	}

	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i >= 0 && j >= i {
		sub := s[i : j+1]
		if json.Valid([]byte(sub)) {
			return sub
		}
		s = sub
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	if json.Valid([]byte(s)) {
		return s
	}

	if !strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		s = "{" + s
	} else if strings.HasPrefix(s, "{") && !strings.HasSuffix(s, "}") {
		s = s + "}"
	}

	out, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return s
	}
	return out
}
