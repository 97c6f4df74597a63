// Package preload seeds the site directory at startup from an archive in S3.
// The current archive's sha256 is published in an SSM parameter; the object
// key is derived from it as {prefix}/{hash}.zip. The download is verified
// against the hash before extraction. Preload failure is never fatal: the
// server starts with whatever the site directory already holds.
package preload

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/sitedrop/internal/cryptoutil"
	"github.com/keithlinneman/sitedrop/internal/extract"
	"github.com/keithlinneman/sitedrop/internal/log"
	"github.com/keithlinneman/sitedrop/internal/xerrors"
)

// SSMAPI is the slice of the SSM client the loader uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3API is the slice of the S3 client the loader uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Logger log.Logger

	// SSM parameter containing the archive SHA256 hash
	SSMParam string

	// S3 location for archives: s3://{bucket}/{prefix}/{hash}.zip
	S3Bucket string
	S3Prefix string

	// SiteDir is the live site directory the archive extracts into.
	SiteDir string

	// AWS config (uses default if nil). Ignored when SSM/S3 are set.
	AWSConfig *aws.Config

	// SSM/S3 override the constructed clients, for tests.
	SSM SSMAPI
	S3  S3API
}

type Loader struct {
	opts   Options
	ssm    SSMAPI
	s3     S3API
	logger log.Logger
}

func NewLoader(ctx context.Context, opts Options) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.SiteDir == "" {
		return nil, xerrors.New("SiteDir is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	ssmClient := opts.SSM
	s3Client := opts.S3
	if ssmClient == nil || s3Client == nil {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		if ssmClient == nil {
			ssmClient = ssm.NewFromConfig(awsCfg)
		}
		if s3Client == nil {
			s3Client = s3.NewFromConfig(awsCfg)
		}
	}

	return &Loader{
		opts:   opts,
		ssm:    ssmClient,
		s3:     s3Client,
		logger: opts.Logger,
	}, nil
}

// FetchCurrentArchiveHash gets the current archive hash from SSM.
func (l *Loader) FetchCurrentArchiveHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	hash := strings.TrimSpace(*out.Parameter.Value)
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", l.opts.SSMParam)
	}

	return hash, nil
}

func (l *Loader) s3Key(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.zip", l.opts.S3Prefix, hash)
	}
	return fmt.Sprintf("%s.zip", hash)
}

// Download fetches an archive from S3 and verifies its digest. Returns the
// temp file path; the caller removes it.
func (l *Loader) Download(ctx context.Context, hash string) (string, error) {
	key := l.s3Key(hash)

	l.logger.Info(ctx, "downloading site archive",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"expected_hash", hash,
	)

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	tmpFile, err := os.CreateTemp("", "sitedrop-preload-*.zip")
	if err != nil {
		return "", xerrors.Wrap(err, "create temp file")
	}
	tmpPath := tmpFile.Name()

	written, actualHash, err := cryptoutil.CopyWithHash(tmpFile, out.Body)
	tmpFile.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", xerrors.Wrap(err, "download archive")
	}

	l.logger.Info(ctx, "downloaded site archive",
		"bytes", written,
		"actual_hash", actualHash,
	)

	if !cryptoutil.HashEqual(actualHash, hash) {
		os.Remove(tmpPath)
		return "", xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actualHash)
	}

	return tmpPath, nil
}

// Load fetches the current archive and extracts it into the site directory,
// overwriting existing files so the directory converges on the published
// archive.
func (l *Loader) Load(ctx context.Context) error {
	hash, err := l.FetchCurrentArchiveHash(ctx)
	if err != nil {
		return err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash fetches a specific archive by hash and extracts it.
func (l *Loader) LoadHash(ctx context.Context, hash string) error {
	archivePath, err := l.Download(ctx, hash)
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	l.logger.Info(ctx, "extracting site archive",
		"hash", hash,
		"dest", l.opts.SiteDir,
	)

	if err := extract.Extract(ctx, archivePath, l.opts.SiteDir, extract.Options{
		Overwrite: true,
	}); err != nil {
		return xerrors.Wrap(err, "extract archive")
	}

	l.logger.Info(ctx, "site archive extracted",
		"hash", hash,
		"dest", l.opts.SiteDir,
	)
	return nil
}
