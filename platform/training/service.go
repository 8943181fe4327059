// Package training runs managed training jobs: it schedules container
// training runs over a bounded worker pool and tracks job state in the
// metadata store.
package training

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
	"github.com/skiffml/skiff/platform/registry"
	"github.com/skiffml/skiff/platform/store"
)

// JobStatus is the lifecycle state of a training job.
type JobStatus string

const (
	StatusInProgress JobStatus = "InProgress"
	StatusCompleted  JobStatus = "Completed"
	StatusFailed     JobStatus = "Failed"
	StatusStopped    JobStatus = "Stopped"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// JobSpec describes a training job to create. Name may be empty, in which
// case the service derives one from the algorithm and a unique suffix.
type JobSpec struct {
	Name            string
	ImageURI        string
	HyperParameters map[string]string
	// InputChannels maps channel names to blob keys.
	InputChannels map[string]string
	// OutputPrefix is the blob key prefix the model artifact is written
	// under.
	OutputPrefix string
	// Resource configuration is recorded with the job but not enforced.
	InstanceType  string
	InstanceCount int
}

// JobDescription is the observable state of a training job.
type JobDescription struct {
	Name          string
	Status        JobStatus
	ImageURI      string
	ArtifactKey   string
	FinalMetric   float64
	FailureReason string
	CreatedAt     time.Time
	EndedAt       time.Time
}

// Service executes training jobs asynchronously.
type Service struct {
	blobs  blob.Store
	meta   *store.Metadata
	logger log.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the number of concurrently running jobs.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a training service over the given blob store and
// metadata store.
func NewService(blobs blob.Store, meta *store.Metadata, opts ...Option) *Service {
	s := &Service{
		blobs:   blobs,
		meta:    meta,
		logger:  log.GetLoggerWithName("platform.training"),
		sem:     make(chan struct{}, 2),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTrainingJob validates the spec, records the job as InProgress and
// schedules it on the worker pool. Duplicate job names are rejected.
func (s *Service) CreateTrainingJob(ctx context.Context, spec JobSpec) (*JobDescription, error) {
	if spec.Name == "" {
		spec.Name = defaultJobName(spec.ImageURI)
	}
	container, err := registry.Resolve(spec.ImageURI)
	if err != nil {
		return nil, err
	}
	if _, ok := spec.InputChannels["train"]; !ok {
		return nil, errors.NewValueError("CreateTrainingJob",
			fmt.Sprintf("job %q has no \"train\" channel", spec.Name))
	}
	if spec.InstanceCount <= 0 {
		spec.InstanceCount = 1
	}

	rec := &store.JobRecord{
		Name:            spec.Name,
		Status:          string(StatusInProgress),
		ImageURI:        spec.ImageURI,
		HyperParameters: spec.HyperParameters,
		InputChannels:   spec.InputChannels,
		OutputPrefix:    spec.OutputPrefix,
		InstanceType:    spec.InstanceType,
		InstanceCount:   spec.InstanceCount,
		CreatedAt:       time.Now(),
	}
	if err := s.meta.CreateJob(ctx, rec); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[spec.Name] = cancel
	s.mu.Unlock()

	s.logger.Info("Training job created",
		log.JobNameKey, spec.Name,
		log.ImageURIKey, spec.ImageURI)

	s.wg.Add(1)
	go s.run(jobCtx, container, spec)

	return describeRecord(rec), nil
}

func (s *Service) run(ctx context.Context, container registry.Container, spec JobSpec) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[spec.Name]; ok {
			cancel()
			delete(s.cancels, spec.Name)
		}
		s.mu.Unlock()
	}()

	// Wait for a worker slot; a stop while queued cancels ctx.
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	// A panicking container fails the job rather than taking the
	// service down with it.
	var out *registry.TrainOutput
	err := errors.SafeExecute("container train", func() error {
		var trainErr error
		out, trainErr = container.Train(ctx, registry.TrainInput{
			HyperParameters: spec.HyperParameters,
			Channels:        spec.InputChannels,
			Blobs:           s.blobs,
			ArtifactKey:     artifactKey(spec),
			Logger:          s.logger.With(log.JobNameKey, spec.Name),
		})
		return trainErr
	})

	rec, getErr := s.meta.GetJob(context.Background(), spec.Name)
	if getErr != nil {
		s.logger.Error("Lost job record after training run",
			log.JobNameKey, spec.Name, log.ErrAttrKey, getErr)
		return
	}

	rec.EndedAt = time.Now()
	if err != nil {
		rec.Status = string(StatusFailed)
		rec.FailureReason = err.Error()
		s.logger.Error("Training job failed",
			log.JobNameKey, spec.Name,
			log.ErrAttrKey, err,
			log.DurationMsKey, time.Since(started).Milliseconds())
	} else {
		rec.Status = string(StatusCompleted)
		rec.ArtifactKey = out.ArtifactKey
		rec.FinalMetric = out.FinalMetric
		s.logger.Info("Training job completed",
			log.JobNameKey, spec.Name,
			log.MetricNameKey, out.MetricName,
			log.MetricValueKey, out.FinalMetric,
			log.DurationMsKey, time.Since(started).Milliseconds())
	}
	// The guard on InProgress keeps a concurrent Stop from being
	// overwritten; zero rows means the stop finalized the record first.
	finalized, updErr := s.meta.FinalizeJob(context.Background(), rec, string(StatusInProgress))
	if updErr != nil {
		s.logger.Error("Updating job record failed",
			log.JobNameKey, spec.Name, log.ErrAttrKey, updErr)
	} else if !finalized {
		s.logger.Info("Job already finalized, keeping existing status",
			log.JobNameKey, spec.Name)
	}
}

// DescribeTrainingJob returns the current state of a job.
func (s *Service) DescribeTrainingJob(ctx context.Context, name string) (*JobDescription, error) {
	rec, err := s.meta.GetJob(ctx, name)
	if err != nil {
		return nil, err
	}
	return describeRecord(rec), nil
}

// StopTrainingJob cancels an InProgress job and marks it Stopped. Stopping
// a terminal job is an error.
func (s *Service) StopTrainingJob(ctx context.Context, name string) error {
	rec, err := s.meta.GetJob(ctx, name)
	if err != nil {
		return err
	}
	if JobStatus(rec.Status).Terminal() {
		return errors.NewValueError("StopTrainingJob",
			fmt.Sprintf("job %q is already %s", name, rec.Status))
	}

	rec.Status = string(StatusStopped)
	rec.EndedAt = time.Now()
	stopped, err := s.meta.FinalizeJob(ctx, rec, string(StatusInProgress))
	if err != nil {
		return err
	}
	if !stopped {
		// The job reached a terminal state while we were looking.
		fresh, err := s.meta.GetJob(ctx, name)
		if err != nil {
			return err
		}
		return errors.NewValueError("StopTrainingJob",
			fmt.Sprintf("job %q is already %s", name, fresh.Status))
	}

	s.mu.Lock()
	if cancel, ok := s.cancels[name]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.logger.Info("Training job stopped", log.JobNameKey, name)
	return nil
}

// WaitForCompletion polls the job until it reaches a terminal state. A
// Failed terminal state is returned as a JobFailedError alongside the
// description. The optional progress callback fires after every poll.
func (s *Service) WaitForCompletion(ctx context.Context, name string, poll time.Duration, progress func(*JobDescription)) (*JobDescription, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		desc, err := s.DescribeTrainingJob(ctx, name)
		if err != nil {
			return nil, err
		}
		if progress != nil {
			progress(desc)
		}
		if desc.Status.Terminal() {
			if desc.Status == StatusFailed {
				return desc, errors.NewJobFailedError(name, desc.FailureReason)
			}
			return desc, nil
		}

		select {
		case <-ctx.Done():
			return desc, errors.WithStack(ctx.Err())
		case <-ticker.C:
		}
	}
}

// ListTrainingJobs returns all job names, newest first.
func (s *Service) ListTrainingJobs(ctx context.Context) ([]string, error) {
	return s.meta.ListJobs(ctx)
}

// Shutdown waits for running jobs to finish.
func (s *Service) Shutdown() {
	s.wg.Wait()
}

func describeRecord(rec *store.JobRecord) *JobDescription {
	return &JobDescription{
		Name:          rec.Name,
		Status:        JobStatus(rec.Status),
		ImageURI:      rec.ImageURI,
		ArtifactKey:   rec.ArtifactKey,
		FinalMetric:   rec.FinalMetric,
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt,
		EndedAt:       rec.EndedAt,
	}
}

func artifactKey(spec JobSpec) string {
	return path.Join(spec.OutputPrefix, spec.Name, "model.json")
}

// defaultJobName derives a unique job name from the image's algorithm.
func defaultJobName(imageURI string) string {
	algorithm := "training-job"
	if _, repo, ok := strings.Cut(imageURI, "/"); ok {
		if name, _, ok := strings.Cut(repo, ":"); ok && name != "" {
			algorithm = name
		}
	}
	return fmt.Sprintf("%s-%s", algorithm, uuid.NewString()[:8])
}
