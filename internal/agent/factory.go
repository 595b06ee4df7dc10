package agent

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ivan-andreyev/agent-orchestra/internal/api"
	"github.com/ivan-andreyev/agent-orchestra/internal/config"
	iexec "github.com/ivan-andreyev/agent-orchestra/internal/exec"
)

// NewExecutorFromConfig returns the WorkExecutor selected by executor.kind.
// When a per-task timeout is configured the executor is wrapped with it.
func NewExecutorFromConfig(cfg *config.Config) (WorkExecutor, error) {
	var exec WorkExecutor

	switch cfg.Executor.Kind {
	case config.ExecutorClaude, "":
		exec = NewClaudeCLIExecutor(iexec.NewRunner(), ClaudeCLIConfig{
			Binary:       cfg.Executor.ClaudePath,
			Model:        cfg.Anthropic.Model,
			AllowedTools: cfg.Executor.AllowedTools,
		})
	case config.ExecutorShell:
		exec = NewShellExecutor(iexec.NewRunner())
	case config.ExecutorAPI:
		clientCfg := api.ClientConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			MaxTokens:     cfg.Anthropic.MaxTokens,
			UseAWSBedrock: cfg.Anthropic.Bedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		}
		if !cfg.Anthropic.Bedrock {
			key, err := config.GetAPIKey(cfg)
			if err != nil {
				return nil, err
			}
			clientCfg.APIKey = key
		}
		client, err := api.NewClient(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		exec = NewAPIExecutor(client)
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Executor.Kind)
	}

	if cfg.Executor.TaskTimeout > 0 {
		exec = WithTimeout(exec, cfg.Executor.TaskTimeout)
	}
	return exec, nil
}
