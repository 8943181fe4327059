// Package registry maps built-in algorithm names to container image URIs
// and binds image URIs back to their in-process implementations. Training
// code never names an algorithm directly; it names an image URI, exactly as
// it would against a real container registry.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/blob"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/pkg/log"
)

// accountID is the fixed registry account all built-in images live under.
const accountID = "123456789012"

// TrainInput carries everything a container needs to run a training job.
type TrainInput struct {
	HyperParameters map[string]string
	// Channels maps channel names ("train", "validation") to blob keys.
	Channels map[string]string
	Blobs    blob.Store
	// ArtifactKey is where the container writes the trained model.
	ArtifactKey string
	Logger      log.Logger
}

// TrainOutput reports the result of a completed training run.
type TrainOutput struct {
	ArtifactKey string
	MetricName  string
	FinalMetric float64
}

// Predictor scores feature rows against a loaded model artifact.
type Predictor interface {
	Predict(X *mat.Dense) (*mat.Dense, error)
	NumFeatures() int
}

// Container is an in-process stand-in for a built-in algorithm image: it
// trains from blob-stored channels and loads predictors from artifacts.
type Container interface {
	Train(ctx context.Context, in TrainInput) (*TrainOutput, error)
	LoadPredictor(artifact []byte) (Predictor, error)
}

// Regions lists the regions built-in images are published to.
var Regions = []string{"us-east-1", "us-west-2", "eu-west-1", "ap-northeast-1"}

// algorithm versions, newest last; "latest" resolves to the final entry.
var algorithms = map[string][]string{
	"xgboost":        {"1.5-1", "1.7-1"},
	"linear-learner": {"1.0-1"},
}

// Retrieve returns the image URI of a built-in algorithm, e.g.
// "123456789012.dkr.skiff.us-east-1/xgboost:1.7-1". Version "latest" or ""
// picks the newest published version.
func Retrieve(algorithm, region, version string) (string, error) {
	versions, ok := algorithms[algorithm]
	if !ok {
		return "", errors.NewValueError("registry.Retrieve",
			fmt.Sprintf("unknown algorithm %q (known: %s)", algorithm, strings.Join(knownAlgorithms(), ", ")))
	}
	if !regionKnown(region) {
		return "", errors.NewValueError("registry.Retrieve",
			fmt.Sprintf("algorithm %q is not published in region %q", algorithm, region))
	}
	if version == "" || version == "latest" {
		version = versions[len(versions)-1]
	} else if !versionKnown(versions, version) {
		return "", errors.NewValueError("registry.Retrieve",
			fmt.Sprintf("unknown version %q of algorithm %q", version, algorithm))
	}
	return fmt.Sprintf("%s.dkr.skiff.%s/%s:%s", accountID, region, algorithm, version), nil
}

// Resolve binds an image URI produced by Retrieve to its in-process
// container implementation.
func Resolve(imageURI string) (Container, error) {
	algorithm, version, err := parseImageURI(imageURI)
	if err != nil {
		return nil, err
	}
	versions, ok := algorithms[algorithm]
	if !ok || !versionKnown(versions, version) {
		return nil, errors.NewValueError("registry.Resolve",
			fmt.Sprintf("no container for image %q", imageURI))
	}
	switch algorithm {
	case "xgboost":
		return &xgboostContainer{version: version}, nil
	case "linear-learner":
		return &linearLearnerContainer{version: version}, nil
	}
	return nil, errors.NewValueError("registry.Resolve",
		fmt.Sprintf("no container for image %q", imageURI))
}

func parseImageURI(uri string) (algorithm, version string, err error) {
	host, repo, ok := strings.Cut(uri, "/")
	if !ok || !strings.HasPrefix(host, accountID+".dkr.skiff.") {
		return "", "", errors.NewValueError("registry.Resolve",
			fmt.Sprintf("malformed image URI %q", uri))
	}
	algorithm, version, ok = strings.Cut(repo, ":")
	if !ok || algorithm == "" || version == "" {
		return "", "", errors.NewValueError("registry.Resolve",
			fmt.Sprintf("image URI %q has no version tag", uri))
	}
	return algorithm, version, nil
}

func knownAlgorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func regionKnown(region string) bool {
	for _, r := range Regions {
		if r == region {
			return true
		}
	}
	return false
}

func versionKnown(versions []string, version string) bool {
	for _, v := range versions {
		if v == version {
			return true
		}
	}
	return false
}
