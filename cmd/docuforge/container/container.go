package container

import (
	"context"
	"fmt"

	"github.com/docuforge/docuforge/cmd/docuforge/repository"
	"github.com/docuforge/docuforge/cmd/docuforge/service"
	"github.com/docuforge/docuforge/common/bootstrap"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/validation"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	Gateway   *clients.Gateway
	Validator *validation.FileValidator

	// Repositories
	HistoryRepo *repository.HistoryRepository

	// Services
	Storage      *service.Storage
	Analyzer     *service.Analyzer
	Compression  *service.Compression
	Conversion   *service.Conversion
	OCR          *service.OCR
	AI           *service.AI
	Cloud        *service.Cloud
	Auth         *service.AuthManager
	AppState     *service.AppState
	Analytics    *service.Analytics
	ErrorRouter  *service.ErrorRouter
	Orchestrator *service.Orchestrator
}

// NewContainer initializes all services once, bottom-up.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	gateway := clients.NewGateway(cfg.API, components.KV, log)
	validator := validation.NewFileValidator(components.Crypto, log)

	var historyRepo *repository.HistoryRepository
	if components.DB != nil {
		historyRepo = repository.NewHistoryRepository(components.DB)
	}

	analyzer := service.NewAnalyzer(log)
	storage := service.NewStorage(components.KV, components.Bus, log)
	compression := service.NewCompression(gateway, analyzer, storage, components.Crypto, components.Bus, log)
	conversion := service.NewConversion(gateway, analyzer, storage, components.Bus, log)
	ocr := service.NewOCR(gateway, storage, components.Crypto, components.Bus, log)
	ai := service.NewAI(gateway, analyzer, components.Bus, log)
	cloud := service.NewCloud(gateway, storage, components.KV, cfg.Cloud, components.Bus, log)
	auth := service.NewAuthManager(gateway, components.KV, components.Bus, log)
	appState := service.NewAppState(components.KV, components.Bus, log)
	analytics := service.NewAnalytics(gateway, cfg.API.AnalyticsBatch, log)

	for _, base := range []*service.Base{
		storage.Base, compression.Base, conversion.Base, ocr.Base, ai.Base, cloud.Base,
	} {
		base.SetFileWaitTimeout(cfg.Storage.FileWaitTimeout)
	}

	errorRouter, err := service.NewErrorRouter(log)
	if err != nil {
		return nil, fmt.Errorf("create error router: %w", err)
	}

	var archive service.Archiver
	if historyRepo != nil {
		archive = historyRepo
	}
	orchestrator := service.NewOrchestrator(
		storage,
		compression,
		conversion,
		ocr,
		ai,
		cloud,
		analytics,
		errorRouter,
		archive,
		components.Bus,
		log,
	)

	if err := appState.Init(ctx); err != nil {
		return nil, fmt.Errorf("restore app state: %w", err)
	}
	if err := orchestrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}

	return &Container{
		Components:   components,
		Gateway:      gateway,
		Validator:    validator,
		HistoryRepo:  historyRepo,
		Storage:      storage,
		Analyzer:     analyzer,
		Compression:  compression,
		Conversion:   conversion,
		OCR:          ocr,
		AI:           ai,
		Cloud:        cloud,
		Auth:         auth,
		AppState:     appState,
		Analytics:    analytics,
		ErrorRouter:  errorRouter,
		Orchestrator: orchestrator,
	}, nil
}

// Shutdown detaches the orchestrator and flushes pending analytics.
func (c *Container) Shutdown(ctx context.Context) {
	c.Orchestrator.Shutdown(ctx)
}
