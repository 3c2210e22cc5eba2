package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"groupchat/chat"
	"groupchat/intervention"
	"groupchat/lifecycle"
	"groupchat/model"
	"groupchat/provider"
)

var sensitivities = []string{
	string(model.SensitivitySilent),
	string(model.SensitivityConservative),
	string(model.SensitivityBalanced),
	string(model.SensitivityProactive),
}

func evaluateInterventionTool() mcp.Tool {
	return mcp.NewTool("evaluate_intervention",
		mcp.WithDescription("Decide whether an AI participant would reply to a message, without posting anything."),
		mcp.WithString("role", mcp.Required(), mcp.Description("Participant role, e.g. moderator, planner, summarizer")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The latest message text")),
		mcp.WithString("sensitivity", mcp.Description("How eagerly the participant intervenes"), mcp.Enum(sensitivities...)),
		mcp.WithString("custom_mention", mcp.Description("Extra @alias the participant answers to")),
		mcp.WithString("conversation_id", mcp.Description("Use this conversation's recent history; requires user_id")),
		mcp.WithString("user_id", mcp.Description("Member id used to read the conversation")),
	)
}

func createConversationTool() mcp.Tool {
	return mcp.NewTool("create_conversation",
		mcp.WithDescription("Create a conversation owned by user_id with the given AI participants."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Creator's user id")),
		mcp.WithString("user_name", mcp.Description("Creator's display name")),
		mcp.WithString("roles", mcp.Description("Comma-separated participant roles; defaults to a moderator")),
		mcp.WithString("sensitivity", mcp.Description("Sensitivity applied to every participant"), mcp.Enum(sensitivities...)),
		mcp.WithBoolean("open", mcp.Description("Let anyone join without a key")),
	)
}

func sendMessageTool() mcp.Tool {
	return mcp.NewTool("send_message",
		mcp.WithDescription("Post a message as a member and wait for the AI participants to finish."),
		mcp.WithString("conversation_id", mcp.Required()),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithString("user_name"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
	)
}

func recentMessagesTool() mcp.Tool {
	return mcp.NewTool("recent_messages",
		mcp.WithDescription("Read a conversation's recent visible messages as a transcript."),
		mcp.WithString("conversation_id", mcp.Required()),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum messages to return (default 20)")),
	)
}

// EvaluateIntervention handles evaluate_intervention.
func (t *Tools) EvaluateIntervention(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	role, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p := model.AIParticipant{
		Role:          model.Role(role),
		Sensitivity:   model.Sensitivity(req.GetString("sensitivity", "")),
		CustomMention: req.GetString("custom_mention", ""),
	}.Normalize()

	var history []model.Message
	if id := req.GetString("conversation_id", ""); id != "" {
		user := model.User{ID: req.GetString("user_id", "")}
		history, err = t.svc.Messages(ctx, id, user, intervention.DecisionWindow()-1)
		if err != nil {
			return toolError(err), nil
		}
	}
	history = append(history, model.Message{Kind: model.KindHuman, Content: message})

	d := t.decider.Decide(history, p, message)
	return jsonResult(map[string]any{
		"role":          p.Role,
		"shouldRespond": d.ShouldRespond,
		"reason":        d.Reason,
		"confidence":    d.Confidence,
	})
}

// CreateConversation handles create_conversation.
func (t *Tools) CreateConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sensitivity := model.Sensitivity(req.GetString("sensitivity", ""))
	var participants []model.AIParticipant
	for _, r := range strings.Split(req.GetString("roles", ""), ",") {
		if r = strings.TrimSpace(r); r != "" {
			participants = append(participants, model.AIParticipant{Role: model.Role(r), Sensitivity: sensitivity})
		}
	}

	conv, err := t.svc.CreateConversation(ctx,
		model.User{ID: userID, DisplayName: req.GetString("user_name", "")},
		chat.CreateOptions{Participants: participants, Open: req.GetBool("open", false)},
	)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(conv)
}

// SendMessage handles send_message.
func (t *Tools) SendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	user := model.User{ID: userID, DisplayName: req.GetString("user_name", "")}
	msg, batch, err := t.svc.SendMessage(ctx, id, user, content)
	if err != nil {
		return toolError(err), nil
	}

	var outcomes []lifecycle.Outcome
	if batch != nil {
		waitCtx, cancel := context.WithTimeout(ctx, t.waitTimeout)
		defer cancel()
		outcomes, err = batch.Wait(waitCtx)
		if err != nil {
			t.logger.Warn().Err(err).Str("conversation", id).Msg("stopped waiting for AI participants")
		}
	}

	replies := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		entry := map[string]any{
			"role":   o.Role,
			"status": o.Status,
			"reason": o.Decision.Reason,
		}
		if o.Err != nil {
			entry["error"] = o.Err.Error()
		}
		replies = append(replies, entry)
	}
	return jsonResult(map[string]any{"message": msg, "participants": replies})
}

// RecentMessages handles recent_messages.
func (t *Tools) RecentMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	if limit < 1 {
		limit = 20
	}

	msgs, err := t.svc.Messages(ctx, id, model.User{ID: userID}, limit)
	if err != nil {
		return toolError(err), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultText("(no messages)"), nil
	}
	return mcp.NewToolResultText(provider.FormatHistory(msgs)), nil
}

// toolError reports service failures to the caller as tool errors rather
// than protocol errors.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrInvalidUser), errors.Is(err, chat.ErrJoinDenied):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultErrorFromErr("request failed", err)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
