package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/strata/pkg/config"
	"github.com/openfroyo/strata/pkg/functions"
	"github.com/openfroyo/strata/pkg/lookup"
	"github.com/openfroyo/strata/pkg/telemetry"
)

// session is the runtime of one command: settings, telemetry and the
// function registry. Adapters are created per lookup run.
type session struct {
	app      *app
	settings *config.Settings
	tel      *telemetry.Telemetry
	registry *functions.Registry
	log      *telemetry.Logger
	logger   zerolog.Logger
}

func (a *app) openSession() (*session, error) {
	settings, err := config.Load(a.fs, a.settingsPath)
	if err != nil {
		return nil, err
	}
	if a.environment != "" {
		settings.Environment = a.environment
		if err := settings.Validate(); err != nil {
			return nil, fmt.Errorf("invalid environment %q: %w", a.environment, err)
		}
	}

	tel, err := telemetry.NewTelemetry(telemetry.FromSettings(settings, a.version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.NewComponentLogger("cli").WithEnvironment(settings.Environment)

	registry := functions.NewRegistry(*tel.Logger.Zerolog(),
		functions.WithFs(a.fs),
		functions.WithStarlarkTimeout(settings.StarlarkTimeout),
	)

	return &session{
		app:      a,
		settings: settings,
		tel:      tel,
		registry: registry,
		log:      logger,
		logger:   *logger.Zerolog(),
	}, nil
}

// newAdapter creates a lookup adapter with empty caches.
func (s *session) newAdapter() (*lookup.Adapter, error) {
	return lookup.NewAdapter(lookup.AdapterConfig{
		Fs:                 s.app.fs,
		Logger:             s.tel.Logger.Zerolog(),
		Loader:             s.registry,
		Modules:            lookup.ModulePath{Fs: s.app.fs, Dirs: []string{s.settings.ModuleDir()}},
		GlobalConfig:       s.settings.HieraConfig,
		EnvironmentRoot:    s.settings.EnvironmentDir(),
		DisableDataBinding: !s.settings.DataBindingEnabled(),
		ParseOptions:       lookup.ParseOptions{CodeDir: s.settings.CodeDir},
		Metrics:            s.tel.Metrics,
		Tracer:             s.tel.Tracer.Tracer(),
	})
}

// trace runs fn inside the root span of command. The context handed to fn
// carries the command logger.
func (s *session) trace(ctx context.Context, command string, fn func(context.Context) error) error {
	ctx, span := s.tel.Tracer.StartCommandSpan(ctx, command, s.settings.Environment)
	defer span.End()

	log := s.log.WithField("command", command)
	if id := telemetry.TraceID(ctx); id != "" {
		log = log.WithField("trace_id", id)
	}
	ctx = log.WithContext(ctx)

	err := fn(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		log.WithError(err).Debug("Command failed")
	} else {
		telemetry.RecordSuccess(span)
		log.Debug("Command completed")
	}
	return err
}

func (s *session) Close(ctx context.Context) error {
	return errors.Join(s.registry.Close(), s.tel.Shutdown(ctx))
}
