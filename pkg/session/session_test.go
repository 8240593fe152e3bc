package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdm0006/songlake/pkg/config"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func localConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Input.Base = t.TempDir()
	cfg.Output.Base = "file://" + filepath.Join(t.TempDir(), "out")
	cfg.AWS.CredentialsFile = filepath.Join(t.TempDir(), "absent.cfg")
	return cfg
}

func TestNewLocal(t *testing.T) {
	cfg := localConfig(t)
	cfg.Runtime.Workers = 3
	s, err := New(context.Background(), cfg, WithLogger(quiet))
	require.NoError(t, err, "local runs need no credentials")
	assert.Equal(t, cfg.Input.Base, s.Input.String())
	assert.Equal(t, 3, s.Workers())
	require.NoError(t, s.Ping(context.Background()))

	cfg.Input.Base = filepath.Join(cfg.Input.Base, "missing")
	s, err = New(context.Background(), cfg, WithLogger(quiet))
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Ping(context.Background()), ErrInit))
}

func TestNewS3NeedsCredentials(t *testing.T) {
	cfg := localConfig(t)
	cfg.Output.Base = "s3a://spark-output"
	_, err := New(context.Background(), cfg, WithLogger(quiet))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInit))
	assert.True(t, errors.Is(err, config.ErrConfig))
}

func TestNewS3WithCredentials(t *testing.T) {
	cfg := localConfig(t)
	cfg.Input.Base = "s3a://udacity-dend/"
	p := filepath.Join(t.TempDir(), "dl.cfg")
	require.NoError(t, os.WriteFile(p, []byte("[AWS]\nAWS_ACCESS_KEY_ID=AKIA\nAWS_SECRET_ACCESS_KEY=secret\n"), 0o600))
	cfg.AWS.CredentialsFile = p
	before, had := os.LookupEnv("AWS_ACCESS_KEY_ID")

	s, err := New(context.Background(), cfg, WithLogger(quiet))
	require.NoError(t, err)
	assert.Equal(t, "s3://udacity-dend", s.Input.String())
	after, has := os.LookupEnv("AWS_ACCESS_KEY_ID")
	assert.Equal(t, had, has)
	assert.Equal(t, before, after, "environment must not change")
}

type headOnly struct {
	s3iface.S3API
	bucket string
}

func (h headOnly) HeadBucketWithContext(ctx aws.Context, in *s3.HeadBucketInput, opts ...request.Option) (*s3.HeadBucketOutput, error) {
	if aws.StringValue(in.Bucket) != h.bucket {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestInjectedClient(t *testing.T) {
	cfg := localConfig(t)
	cfg.Input.Base = "s3://udacity-dend/"
	s, err := New(context.Background(), cfg, WithLogger(quiet), WithS3Client(headOnly{bucket: "udacity-dend"}))
	require.NoError(t, err, "an injected client skips the credentials file")
	require.NoError(t, s.Ping(context.Background()))

	cfg.Input.Base = "s3://elsewhere/"
	s, err = New(context.Background(), cfg, WithLogger(quiet), WithS3Client(headOnly{bucket: "udacity-dend"}))
	require.NoError(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
