package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/ppiankov/neurorouter"
	"golang.org/x/time/rate"

	"github.com/ppiankov/turnguard/internal/memory"
)

const defaultBedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"

// converseAPI is the subset of the Bedrock runtime client the oracle uses.
type converseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock calls models through the AWS Bedrock Converse API.
type Bedrock struct {
	cfg     Config
	api     converseAPI
	limiter *rate.Limiter
}

// NewBedrock loads AWS credentials from the default chain.
func NewBedrock(ctx context.Context, cfg Config) (*Bedrock, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("oracle: load aws config: %w", err)
	}
	return newBedrockWithAPI(cfg, bedrockruntime.NewFromConfig(awsCfg)), nil
}

func newBedrockWithAPI(cfg Config, api converseAPI) *Bedrock {
	if cfg.Model == "" {
		cfg.Model = defaultBedrockModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	b := &Bedrock{cfg: cfg, api: api}
	if cfg.RatePerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return b
}

func (b *Bedrock) ChooseNextIntent(ctx context.Context, allowed []string, c IntentContext) (string, error) {
	if len(allowed) == 0 {
		return c.Fallback, nil
	}
	msgs := []types.Message{textMessage(types.ConversationRoleUser, choosePrompt(allowed, c))}
	answer, err := b.converse(ctx, chooseSystemPrompt, msgs, 16)
	if err != nil {
		return "", err
	}
	return cleanAnswer(answer), nil
}

func (b *Bedrock) DraftReply(ctx context.Context, system string, history []memory.Message, c DraftContext) (string, error) {
	msgs := make([]types.Message, 0, len(history))
	for _, m := range history {
		role := types.ConversationRoleUser
		if m.Role == memory.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		msgs = append(msgs, textMessage(role, m.Content))
	}
	return b.converse(ctx, draftSystem(system, c), msgs, b.cfg.MaxTokens)
}

func (b *Bedrock) converse(ctx context.Context, system string, msgs []types.Message, maxTokens int) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("oracle: rate limiter: %w", err)
		}
	}
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(b.cfg.Model),
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(0),
		},
	}
	if system != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	out, err := b.api.Converse(ctx, in)
	if err != nil {
		var throttled *types.ThrottlingException
		if errors.As(err, &throttled) {
			return "", fmt.Errorf("oracle: %w: %v", neurorouter.ErrRateLimited, err)
		}
		return "", fmt.Errorf("oracle: bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("oracle: bedrock returned no message")
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, t.Value)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("oracle: empty response")
	}
	return strings.TrimSpace(strings.Join(parts, "")), nil
}

func textMessage(role types.ConversationRole, text string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}
}
