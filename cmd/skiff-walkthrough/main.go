// Command skiff-walkthrough runs the end-to-end housing walkthrough: load
// the dataset, split it, upload the channels, train the built-in xgboost
// algorithm as a managed job, deploy the model to a hosted endpoint, score
// the held-out test set over HTTP, render the predicted-vs-actual plot and
// tear the endpoint down.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/cheggaaa/pb/v3"

	"github.com/skiffml/skiff/dataset"
	"github.com/skiffml/skiff/metrics"
	"github.com/skiffml/skiff/pkg/log"
	"github.com/skiffml/skiff/sdk"
	"github.com/skiffml/skiff/viz"
)

type args struct {
	Region       string `arg:"--region" default:"us-east-1" help:"platform region"`
	Bucket       string `arg:"--bucket" help:"storage bucket name (defaults to skiff-<region>)"`
	DataDir      string `arg:"--data-dir" help:"persist platform state under this directory instead of memory"`
	Rounds       int    `arg:"--rounds" default:"50" help:"boosting rounds"`
	Seed         int64  `arg:"--seed" default:"7" help:"split and training seed"`
	Endpoint     string `arg:"--endpoint" default:"housing-endpoint" help:"endpoint name"`
	Plot         string `arg:"--plot" default:"predicted_vs_actual.png" help:"output path of the evaluation plot"`
	KeepEndpoint bool   `arg:"--keep-endpoint" help:"skip the endpoint teardown step"`
	Verbose      bool   `arg:"-v,--verbose" help:"debug logging"`
}

func (args) Version() string {
	return "skiff-walkthrough 1.0"
}

func (args) Description() string {
	return "Train and deploy a housing-price model on the Skiff platform."
}

const walkthroughSteps = 8

func main() {
	var a args
	arg.MustParse(&a)

	if a.Verbose {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelWarn)
	}

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "skiff-walkthrough: %v\n", err)
		os.Exit(1)
	}
}

func run(a args) error {
	ctx := context.Background()
	bar := pb.StartNew(walkthroughSteps)
	defer bar.Finish()
	step := func(format string, argv ...interface{}) {
		bar.Increment()
		fmt.Printf(format+"\n", argv...)
	}

	sess, err := sdk.NewSession(sdk.Config{
		Region:  a.Region,
		Bucket:  a.Bucket,
		DataDir: a.DataDir,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	// 1. Dataset.
	housing := dataset.LoadHousing()
	step("loaded housing dataset: %d rows, %d features",
		housing.NumRows(), housing.NumFeatures())

	// 2. Train/validation/test split.
	train, validation, test, err := dataset.Split(housing, dataset.DefaultSplit, a.Seed)
	if err != nil {
		return err
	}
	step("split %.0f/%.0f/%.0f: train=%d validation=%d test=%d",
		dataset.DefaultSplit.Train*100, dataset.DefaultSplit.Validation*100,
		dataset.DefaultSplit.Test*100,
		train.NumRows(), validation.NumRows(), test.NumRows())

	// 3. Upload the channels in the container CSV contract.
	channels := make(map[string]string)
	for name, table := range map[string]*dataset.Table{
		"train": train, "validation": validation,
	} {
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, table); err != nil {
			return err
		}
		key, err := sess.UploadData(ctx, "data/"+name, name+".csv", &buf)
		if err != nil {
			return err
		}
		channels[name] = key
	}
	step("uploaded channels to %s", sess.StorageURI("data"))

	// 4. Managed training job against the built-in xgboost image.
	imageURI, err := sess.RetrieveImage("xgboost", "latest")
	if err != nil {
		return err
	}
	est := sdk.NewEstimator(sess, imageURI,
		sdk.WithInstanceType("ml.m5.xlarge"),
		sdk.WithOutputPrefix("output/housing"))
	est.SetHyperParameters(map[string]string{
		"max_depth":        "5",
		"eta":              "0.2",
		"gamma":            "4",
		"min_child_weight": "6",
		"subsample":        "0.7",
		"objective":        "reg:squarederror",
		"num_round":        strconv.Itoa(a.Rounds),
		"seed":             strconv.FormatInt(a.Seed, 10),
	})

	started := time.Now()
	if err := est.Fit(ctx, channels); err != nil {
		return err
	}
	job := est.LatestJob()
	step("training job %s completed in %s (validation RMSE %.4f)",
		job.Name, time.Since(started).Round(time.Millisecond), job.FinalMetric)

	// 5. Hosted endpoint.
	predictor, err := est.Deploy(ctx, a.Endpoint)
	if err != nil {
		return err
	}
	step("deployed endpoint %q", a.Endpoint)

	// 6. Score the test set over HTTP.
	predictions, err := predictor.Predict(ctx, test.X)
	if err != nil {
		return err
	}
	rmse, err := metrics.RMSE(test.Y, predictions)
	if err != nil {
		return err
	}
	r2, err := metrics.R2Score(test.Y, predictions)
	if err != nil {
		return err
	}
	step("test RMSE %.4f, R2 %.4f over %d rows", rmse, r2, predictions.Len())

	// 7. Evaluation plot.
	if err := viz.SavePredictedVsActual(test.Y, predictions,
		"housing: predicted vs actual", a.Plot); err != nil {
		return err
	}
	step("wrote %s", a.Plot)

	// 8. Teardown.
	if a.KeepEndpoint {
		step("kept endpoint %q running", a.Endpoint)
		return nil
	}
	if err := predictor.DeleteEndpoint(ctx); err != nil {
		return err
	}
	step("deleted endpoint %q", a.Endpoint)
	return nil
}
