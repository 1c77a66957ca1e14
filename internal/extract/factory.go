package extract

import (
	"net/http"

	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/imaging"
	"github.com/spherical/flyer-extractor/internal/llm"
	"github.com/spherical/flyer-extractor/internal/pdf"
)

// JobFactory builds a ready-to-run Service for one job.
type JobFactory interface {
	NewJob(jobID string) (*Service, error)
}

// FactoryConfig holds the per-job construction parameters.
type FactoryConfig struct {
	Credentials []llm.Credential
	Generation  llm.GenerationConfig
	HTTPClient  *http.Client
	Retry       llm.RetryPolicy
	Encoder     llm.ImageEncoder
	RenderScale float64
	TempRoot    string
	Options     Options
}

// Factory wires a fresh renderer, rotator and vision client into every job
// while sharing the store, card store, resolver and metrics across jobs.
type Factory struct {
	cfg    FactoryConfig
	shared Dependencies
}

// NewFactory creates a job factory. shared.Renderer and shared.Extractor are ignored.
func NewFactory(cfg FactoryConfig, shared Dependencies) (*Factory, error) {
	if len(cfg.Credentials) == 0 {
		return nil, domain.ConfigError("no vision API keys configured", nil)
	}
	if shared.Resolver == nil {
		shared.Resolver = pdf.NewDownloader(nil, 0, shared.Logger)
	}
	return &Factory{cfg: cfg, shared: shared}, nil
}

// ConfigFromSettings maps the application configuration onto a FactoryConfig.
func ConfigFromSettings(cfg *config.Config) FactoryConfig {
	g := cfg.Gemini
	x := cfg.Extraction

	return FactoryConfig{
		Credentials: llm.CredentialsFor(g.APIKeys, g.BaseURL, g.Model),
		Generation: llm.GenerationConfig{
			Temperature:     g.Temperature,
			TopK:            g.TopK,
			TopP:            g.TopP,
			MaxOutputTokens: g.MaxOutputTokens,
		},
		HTTPClient: &http.Client{Timeout: g.Timeout},
		Retry: llm.RetryPolicy{
			MaxAttempts: x.MaxAttempts,
			Backoff:     llm.LinearBackoff(x.BackoffStep, x.BackoffCap),
		},
		Encoder:     imaging.VisionEncoder(x.MaxImageSide, x.JPEGQuality),
		RenderScale: x.RenderScale,
		TempRoot:    x.TempRoot,
		Options: Options{
			ImagesDir:  x.ImagesDir,
			ResultsDir: x.ResultsDir,
			PageDelay:  x.PageDelay,
			Retailer:   x.DefaultRetailer,
		},
	}
}

// NewJob builds the Service for jobID. Each job gets its own key rotation
// and its own temp directory.
func (f *Factory) NewJob(jobID string) (*Service, error) {
	logger := f.shared.Logger
	if logger != nil {
		logger = logger.WithJob(jobID)
	}

	rotator, err := llm.NewRotator(f.cfg.Credentials)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.ClientOptions{
		Rotator:    rotator,
		Generation: f.cfg.Generation,
		HTTPClient: f.cfg.HTTPClient,
		Retry:      f.cfg.Retry,
		Encoder:    f.cfg.Encoder,
		Metrics:    f.shared.Metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	deps := f.shared
	deps.Renderer = pdf.NewConverter(pdf.ConverterOptions{
		Scale:    f.cfg.RenderScale,
		TempRoot: f.cfg.TempRoot,
		JobID:    jobID,
		Logger:   logger,
	})
	deps.Extractor = client

	return NewService(deps, f.cfg.Options), nil
}

var _ JobFactory = (*Factory)(nil)
