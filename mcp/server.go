// Package mcp exposes the chat service as Model Context Protocol tools so an
// assistant can evaluate intervention rules and take part in conversations.
package mcp

import (
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"groupchat/chat"
	"groupchat/lifecycle"
)

// Tools holds the dependencies shared by every tool handler.
type Tools struct {
	svc         *chat.Service
	decider     lifecycle.Decider
	waitTimeout time.Duration
	logger      zerolog.Logger
}

type Option func(*Tools)

// WithWaitTimeout bounds how long send_message waits for AI replies.
func WithWaitTimeout(d time.Duration) Option {
	return func(t *Tools) {
		if d > 0 {
			t.waitTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tools) { t.logger = l }
}

func NewTools(svc *chat.Service, decider lifecycle.Decider, opts ...Option) *Tools {
	t := &Tools{
		svc:         svc,
		decider:     decider,
		waitTimeout: 45 * time.Second,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewServer creates the MCP server with every tool registered.
func NewServer(version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"groupchat",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s.AddTool(evaluateInterventionTool(), tools.EvaluateIntervention)
	s.AddTool(createConversationTool(), tools.CreateConversation)
	s.AddTool(sendMessageTool(), tools.SendMessage)
	s.AddTool(recentMessagesTool(), tools.RecentMessages)
	return s
}

// ServeStdio runs s over stdin/stdout until the process is signalled.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `Group chat with AI participants (moderator, planner, summarizer, educator).
Use evaluate_intervention to check whether a participant would reply to a message.
Use create_conversation, send_message and recent_messages to take part in a chat;
send_message waits for the AI participants and reports what each one did.`
