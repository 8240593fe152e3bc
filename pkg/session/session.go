// Package session builds the pipeline's runtime context: the input and
// output stores, their S3 client, and the logger.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/wdm0006/songlake/pkg/config"
	"github.com/wdm0006/songlake/pkg/store"
)

// ErrInit means the session could not be built.
var ErrInit = errors.New("session initialization failed")

// Session is created once per run and passed to every phase.
type Session struct {
	Config config.Config
	Input  store.Store
	Output store.Store
	Log    *slog.Logger
}

type options struct {
	client s3iface.S3API
	log    *slog.Logger
}

type Option func(*options)

// WithS3Client uses c instead of a client built from the config.
func WithS3Client(c s3iface.S3API) Option { return func(o *options) { o.client = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// New resolves both locations. Credentials are read only when a location is
// on S3 and no client was supplied; they go straight into the client and are
// never exported to the environment.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	in, err := store.ParseLocation(cfg.Input.Base)
	if err != nil {
		return nil, fmt.Errorf("%w: input: %v", ErrInit, err)
	}
	out, err := store.ParseLocation(cfg.Output.Base)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrInit, err)
	}

	if (in.IsS3() || out.IsS3()) && o.client == nil {
		creds, err := config.LoadCredentials(cfg.AWS.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInit, err)
		}
		o.client, err = newS3Client(cfg.AWS, creds)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInit, err)
		}
	}

	s := &Session{Config: cfg, Log: o.log}
	s.Input = open(in, o.client)
	s.Output = open(out, o.client)
	s.Log.Info("session ready", "input", s.Input.String(), "output", s.Output.String(), "workers", s.Workers())
	return s, nil
}

func newS3Client(cfg config.AWSConfig, creds config.Credentials) (*s3.S3, error) {
	ac := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	}
	if cfg.Endpoint != "" {
		ac.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		ac.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := awssession.NewSession(ac)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return s3.New(sess), nil
}

func open(loc store.Location, client s3iface.S3API) store.Store {
	if loc.IsS3() {
		return store.NewS3(client, nil, loc.Bucket, loc.Path)
	}
	return store.NewLocal(loc.Path)
}

// Workers is the configured concurrency, or GOMAXPROCS when unset.
func (s *Session) Workers() int {
	if s.Config.Runtime.Workers > 0 {
		return s.Config.Runtime.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Ping checks the input root. The output root may not exist before the
// first write.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.Input.Ping(ctx); err != nil {
		return fmt.Errorf("%w: input %s: %v", ErrInit, s.Input, err)
	}
	return nil
}
