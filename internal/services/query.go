package services

import (
	"context"

	"github.com/guptaanant682/memorybank-backend/internal/assembler"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/retrieval"
)

// QueryService answers free-text questions against the memory bank.
type QueryService interface {
	// Ask returns the generated answer with provenance and confidence.
	Ask(ctx context.Context, query string) (assembler.Response, error)

	// Retrieve returns ranked context without calling generation, for
	// callers that want the raw evidence.
	Retrieve(ctx context.Context, query string) (retrieval.Result, error)
}

type queryService struct {
	log       *logger.Logger
	engine    *retrieval.Engine
	assembler *assembler.Assembler
}

func NewQueryService(baseLog *logger.Logger, engine *retrieval.Engine, asm *assembler.Assembler) QueryService {
	return &queryService{
		log:       baseLog.With("service", "QueryService"),
		engine:    engine,
		assembler: asm,
	}
}

func (s *queryService) Ask(ctx context.Context, query string) (assembler.Response, error) {
	return s.assembler.Answer(ctx, query)
}

func (s *queryService) Retrieve(ctx context.Context, query string) (retrieval.Result, error) {
	return s.engine.Retrieve(ctx, query)
}
