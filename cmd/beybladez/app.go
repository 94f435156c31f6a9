package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/shrayg/beybladez/internal/auth"
	"github.com/shrayg/beybladez/internal/cli"
	"github.com/shrayg/beybladez/internal/config"
	"github.com/shrayg/beybladez/internal/imagegen"
	"github.com/shrayg/beybladez/internal/logging"
	"github.com/shrayg/beybladez/internal/metrics"
	"github.com/shrayg/beybladez/internal/notify"
	"github.com/shrayg/beybladez/internal/s3util"
	"github.com/shrayg/beybladez/internal/session"
	"github.com/shrayg/beybladez/internal/sink"
	"github.com/shrayg/beybladez/internal/store"
)

const s3Scheme = "s3://"

// app holds everything a subcommand needs, built once per run.
type app struct {
	cfg      config.Config
	gen      imagegen.Generator
	notifier notify.Notifier
	gallery  store.GalleryStore
	sink     *sink.Sink
}

// controller returns a new session over the app's collaborators.
func (a *app) controller(ctx context.Context) *session.Controller {
	return session.New(session.Config{
		Generator: a.gen,
		Notifier:  a.notifier,
		Sink:      a.sink,
		Context:   ctx,
	})
}

// setup wires the app for command. The generator and its credential are
// only resolved when withGenerator is set.
func setup(ctx context.Context, command string, cfg config.Config, withGenerator bool) (*app, error) {
	start := time.Now()
	startup := logging.NewStartupLogger(command).
		Version(version).
		Config("provider", cfg.Provider).
		Config("model", cfg.Model()).
		Config("gallery", cfg.Gallery).
		Config("output", cfg.OutputDir).
		Feature("desktopNotify", cfg.DesktopNotify).
		Feature("metrics", cfg.Metrics)

	if cfg.Metrics {
		metrics.SetOutput(os.Stderr)
	}
	metrics.SetProvider(cfg.Provider)

	var awsCfg aws.Config
	if cfg.UsesAWS() || strings.HasPrefix(cfg.OutputDir, s3Scheme) {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		startup.Config("awsRegion", awsCfg.Region)
	}

	a := &app{cfg: cfg}

	notifiers := notify.Multi{notify.LogNotifier{}}
	if cfg.DesktopNotify {
		notifiers = append(notifiers, notify.NewDesktopNotifier())
	}
	a.notifier = notifiers

	switch cfg.Gallery {
	case config.GalleryDynamoDB:
		a.gallery = store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.GalleryTable)
		startup.Resource("galleryTable", cfg.GalleryTable)
	default:
		a.gallery = store.NewFileStore(cfg.GalleryFile)
		startup.Resource("galleryFile", cfg.GalleryFile)
	}

	opts := sink.Options{Gallery: a.gallery}
	if bucket, ok := strings.CutPrefix(cfg.OutputDir, s3Scheme); ok {
		bucket = strings.TrimSuffix(bucket, "/")
		if bucket == "" {
			return nil, errors.New("--out s3:// needs a bucket name")
		}
		opts.Saver = s3util.NewBucket(s3.NewFromConfig(awsCfg), bucket)
		startup.Resource("outputBucket", bucket)
	} else {
		dir, err := cli.ResolveOutputDir(cfg.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("invalid output directory: %w", err)
		}
		opts.Saver = sink.LocalSaver{Dir: dir}
	}
	if cfg.S3Bucket != "" {
		opts.Host = s3util.NewBucket(s3.NewFromConfig(awsCfg), cfg.S3Bucket)
		startup.Resource("galleryBucket", cfg.S3Bucket)
	}
	a.sink = sink.New(opts)

	if withGenerator {
		keyOpts := auth.Options{SSMParam: cfg.APIKeySSMParam}
		if cfg.APIKeySSMParam != "" {
			keyOpts.SSM = ssm.NewFromConfig(awsCfg)
			startup.Resource("apiKeyParam", cfg.APIKeySSMParam)
		}

		apiKey, source, err := auth.GetAPIKey(ctx, cfg.Provider, keyOpts)
		if err != nil && !errors.Is(err, auth.ErrNoKey) {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).Msg("Continuing without an API key")
		}
		if source == auth.SourceNone {
			source = "none"
		}
		startup.Config("apiKeySource", string(source))

		a.gen, err = cli.InitGenerator(ctx, cfg, apiKey)
		if err != nil {
			return nil, err
		}
	}

	startup.InitDuration(time.Since(start)).Log()
	return a, nil
}
