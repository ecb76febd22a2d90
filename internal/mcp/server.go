package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"crowdedhouse/internal/narrative"
	"crowdedhouse/internal/store"
)

// Narrator is the part of the narrative engine exposed as tools.
type Narrator interface {
	Prompt(ctx context.Context, in narrative.PromptInput) (*narrative.Result, error)
	Continue(ctx context.Context, channelID, target, author string) (*narrative.Result, error)
	Ask(ctx context.Context, in narrative.AskInput) (*narrative.Result, error)
	AutoGenerate(ctx context.Context, channelID, target, author string) (*narrative.CharactersResult, error)
	Spawn(ctx context.Context, in narrative.SpawnInput) (*narrative.CharactersResult, error)
	Characters(ctx context.Context, channelID string) ([]store.Character, error)
	History(ctx context.Context, channelID string, limit int) ([]store.Memory, error)
}

type Server struct {
	narrator Narrator
	logger   *zap.Logger
	mcp      *sdk.Server
}

func NewServer(narrator Narrator, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		narrator: narrator,
		logger:   logger,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "crowdedhouse",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	s.logger.Info("tool server starting")
	return s.mcp.Run(ctx, transport)
}
