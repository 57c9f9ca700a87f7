// Package intake polls the watched directory, submits every record of each new
// file and routes the file by outcome.
package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/arrivals-intake/constants"
	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/delivery"
	"github.com/joseph-ayodele/arrivals-intake/internal/transport"
)

// Pipeline holds everything one cycle needs except the per-run State.
type Pipeline struct {
	store       transport.RemoteStore
	client      delivery.Client
	creds       delivery.Credentials
	watchedDir  string
	uploadedDir string
	errorsDir   string
	suffixes    []string
	now         func() time.Time
	logger      *slog.Logger
}

// State is what a cycle carries over from the run: the bearer token and the
// dedup set.
type State struct {
	Token delivery.Token
	Seen  DedupSet
}

type Option func(*Pipeline)

func WithUploadedDir(dir string) Option {
	return func(p *Pipeline) {
		if dir != "" {
			p.uploadedDir = dir
		}
	}
}

func WithErrorsDir(dir string) Option {
	return func(p *Pipeline) {
		if dir != "" {
			p.errorsDir = dir
		}
	}
}

func WithSuffixes(suffixes []string) Option {
	return func(p *Pipeline) {
		var out []string
		for _, s := range suffixes {
			if n := constants.NormalizeSuffix(s); n != "" {
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			p.suffixes = out
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(store transport.RemoteStore, client delivery.Client, creds delivery.Credentials, watchedDir string, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		store:       store,
		client:      client,
		creds:       creds,
		watchedDir:  watchedDir,
		uploadedDir: constants.DefaultUploadedDir,
		errorsDir:   constants.DefaultErrorsDir,
		suffixes:    constants.DefaultSuffixes,
		now:         time.Now,
		logger:      logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) UploadedPath() string { return transport.Join(p.watchedDir, p.uploadedDir) }

func (p *Pipeline) ErrorsPath() string { return transport.Join(p.watchedDir, p.errorsDir) }

// Bootstrap creates the uploaded and errors directories if missing.
func (p *Pipeline) Bootstrap(ctx context.Context) error {
	for _, dir := range []string{p.UploadedPath(), p.ErrorsPath()} {
		if err := p.store.EnsureDir(ctx, dir); err != nil {
			p.logger.Error("bootstrap failed", "dir", dir, "error", err)
			return err
		}
	}
	p.logger.Info("bootstrap complete", "watched_dir", p.watchedDir, "uploaded_dir", p.UploadedPath(), "errors_dir", p.ErrorsPath())
	return nil
}

// Authenticate obtains a bearer token with the configured credentials.
func (p *Pipeline) Authenticate(ctx context.Context) (delivery.Token, error) {
	token, err := p.client.Authenticate(ctx, p.creds)
	if err != nil {
		p.logger.Error("authentication failed", "error", err)
		return "", err
	}
	return token, nil
}

// OptionsFromConfig maps the intake configuration onto pipeline options.
func OptionsFromConfig(cfg common.IntakeConfig) []Option {
	return []Option{
		WithUploadedDir(cfg.UploadedDir),
		WithErrorsDir(cfg.ErrorsDir),
		WithSuffixes(cfg.Suffixes),
	}
}
