package tools

import "context"

// Tool execution context keys. Values are injected by the Agent Loop before
// each iteration (spec §4.6 "tool-context injection") and read by individual
// tools during Execute(), rather than held as mutable setter fields, so tools
// stay safe for concurrent execution across turns.

type toolContextKey string

const (
	ctxChannel       toolContextKey = "tool_channel"
	ctxChatID        toolContextKey = "tool_chat_id"
	ctxMessageID     toolContextKey = "tool_message_id"
	ctxWorkspace     toolContextKey = "tool_workspace"
	ctxAsyncCB       toolContextKey = "tool_async_cb"
	ctxVisionConfig  toolContextKey = "tool_vision_config"
	ctxImageGenCfg   toolContextKey = "tool_imagegen_config"
	ctxSubagentDepth toolContextKey = "tool_subagent_depth"
	ctxSentFlag      toolContextKey = "tool_sent_flag"
)

func WithToolChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxChannel, channel)
}

func ToolChannelFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChannel).(string)
	return v
}

func WithToolChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ctxChatID, chatID)
}

func ToolChatIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChatID).(string)
	return v
}

func WithToolMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxMessageID, id)
}

func ToolMessageIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxMessageID).(string)
	return v
}

func WithToolWorkspace(ctx context.Context, ws string) context.Context {
	return context.WithValue(ctx, ctxWorkspace, ws)
}

func ToolWorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxWorkspace).(string)
	return v
}

func WithToolAsyncCB(ctx context.Context, cb AsyncCallback) context.Context {
	return context.WithValue(ctx, ctxAsyncCB, cb)
}

func ToolAsyncCBFromCtx(ctx context.Context) AsyncCallback {
	v, _ := ctx.Value(ctxAsyncCB).(AsyncCallback)
	return v
}

// VisionConfig/ImageGenConfig are small per-agent override structs read by
// the create_image/read_image tools.
type VisionConfig struct {
	Enabled  bool
	Provider string
	Model    string
	MaxSize  int
	MaxBytes int
	Quality  int
}

type ImageGenConfig struct {
	Provider string
	Model    string
}

func WithVisionConfig(ctx context.Context, cfg *VisionConfig) context.Context {
	return context.WithValue(ctx, ctxVisionConfig, cfg)
}

func VisionConfigFromCtx(ctx context.Context) *VisionConfig {
	v, _ := ctx.Value(ctxVisionConfig).(*VisionConfig)
	return v
}

func WithImageGenConfig(ctx context.Context, cfg *ImageGenConfig) context.Context {
	return context.WithValue(ctx, ctxImageGenCfg, cfg)
}

func ImageGenConfigFromCtx(ctx context.Context) *ImageGenConfig {
	v, _ := ctx.Value(ctxImageGenCfg).(*ImageGenConfig)
	return v
}

// WithMessageSentFlag/MessageSentFlagFromCtx thread a per-iteration marker
// the message tool sets when it pushes an out-of-band reply directly onto
// the bus, so the Agent Loop knows to suppress its own final outbound for
// that turn instead of sending the same content twice.
func WithMessageSentFlag(ctx context.Context, flag *bool) context.Context {
	return context.WithValue(ctx, ctxSentFlag, flag)
}

func MessageSentFlagFromCtx(ctx context.Context) *bool {
	v, _ := ctx.Value(ctxSentFlag).(*bool)
	return v
}

// WithSubagentDepth/SubagentDepthFromCtx thread the spawn-recursion guard
// (SPEC_FULL §12) through a subagent's tool context.
func WithSubagentDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, ctxSubagentDepth, depth)
}

func SubagentDepthFromCtx(ctx context.Context) int {
	v, _ := ctx.Value(ctxSubagentDepth).(int)
	return v
}
