// Package sdk is the high-level client for the Skiff platform. A Session
// bundles the storage bucket and the platform services; an Estimator runs
// managed training jobs; a Predictor talks to a hosted endpoint.
//
// The walkthrough shape is:
//
//	sess, _ := sdk.NewSession(sdk.Config{Region: "us-east-1", Bucket: "skiff-demo"})
//	est := sdk.NewEstimator(sess, imageURI)
//	est.SetHyperParameters(params)
//	est.Fit(ctx, channels)
//	predictor, _ := est.Deploy(ctx, "housing-endpoint")
//	y, _ := predictor.Predict(ctx, X)
//	predictor.DeleteEndpoint(ctx)
package sdk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
	"github.com/skiffml/skiff/platform/registry"
	"github.com/skiffml/skiff/platform/serving"
	"github.com/skiffml/skiff/platform/store"
	"github.com/skiffml/skiff/platform/training"
)

// Config configures a Session.
type Config struct {
	// Region the session operates in; defaults to us-east-1.
	Region string
	// Bucket is the logical bucket name used in storage URIs.
	Bucket string
	// DataDir, when set, backs the session with on-disk blob storage and
	// a persistent metadata database. Left empty, everything is held in
	// memory and lost when the session closes.
	DataDir string
	// Blobs overrides the blob store (for example an S3Store). When set,
	// DataDir only locates the metadata database.
	Blobs blob.Store
	// Workers bounds concurrently running training jobs.
	Workers int
	Logger  log.Logger
}

// Session owns the platform services and the storage bucket.
type Session struct {
	region string
	bucket string
	blobs  blob.Store
	meta   *store.Metadata
	logger log.Logger

	training *training.Service
	serving  *serving.Service
}

// NewSession builds a session and its backing services.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "skiff-" + cfg.Region
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("sdk.session")
	}

	blobs := cfg.Blobs
	metaPath := ":memory:"
	if cfg.DataDir != "" {
		if blobs == nil {
			disk, err := blob.NewDiskStore(filepath.Join(cfg.DataDir, "blobs"))
			if err != nil {
				return nil, err
			}
			blobs = disk
		}
		metaPath = filepath.Join(cfg.DataDir, "metadata.db")
	}
	if blobs == nil {
		blobs = blob.NewMemoryStore()
	}

	meta, err := store.Open(metaPath)
	if err != nil {
		return nil, err
	}

	trainOpts := []training.Option{training.WithLogger(logger)}
	if cfg.Workers > 0 {
		trainOpts = append(trainOpts, training.WithWorkers(cfg.Workers))
	}
	trainSvc := training.NewService(blobs, meta, trainOpts...)

	serveSvc, err := serving.NewService(blobs, meta, serving.WithLogger(logger))
	if err != nil {
		meta.Close()
		return nil, err
	}

	return &Session{
		region:   cfg.Region,
		bucket:   cfg.Bucket,
		blobs:    blobs,
		meta:     meta,
		logger:   logger,
		training: trainSvc,
		serving:  serveSvc,
	}, nil
}

// Region returns the session region.
func (s *Session) Region() string { return s.region }

// Bucket returns the logical bucket name.
func (s *Session) Bucket() string { return s.bucket }

// RetrieveImage returns the image URI of a built-in algorithm in the
// session's region.
func (s *Session) RetrieveImage(algorithm, version string) (string, error) {
	return registry.Retrieve(algorithm, s.region, version)
}

// StorageURI renders a blob key as a bucket URI for display.
func (s *Session) StorageURI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// UploadData stores the contents of r under prefix/name and returns the
// blob key.
func (s *Session) UploadData(ctx context.Context, prefix, name string, r io.Reader) (string, error) {
	key := path.Join(prefix, name)
	if err := s.blobs.Put(ctx, key, r); err != nil {
		return "", err
	}
	s.logger.Info("Uploaded data",
		log.StorageKeyKey, key, "uri", s.StorageURI(key))
	return key, nil
}

// UploadFile stores a local file under prefix/<basename> and returns the
// blob key.
func (s *Session) UploadFile(ctx context.Context, prefix, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "opening %q", localPath)
	}
	defer f.Close()
	return s.UploadData(ctx, prefix, filepath.Base(localPath), f)
}

// Download reads the blob under key.
func (s *Session) Download(ctx context.Context, key string) ([]byte, error) {
	return blob.GetBytes(ctx, s.blobs, key)
}

// Training exposes the training service for advanced use.
func (s *Session) Training() *training.Service { return s.training }

// Serving exposes the serving service for advanced use.
func (s *Session) Serving() *serving.Service { return s.serving }

// Close waits for running jobs, stops endpoint servers and closes the
// metadata store.
func (s *Session) Close() error {
	s.training.Shutdown()
	s.serving.Shutdown()
	return s.meta.Close()
}
