// Package skiff provides a self-hosted managed machine learning platform
// with a high-level SDK, modeled after the train-and-deploy workflow of
// cloud ML services.
//
// Datasets are uploaded to object storage as CSV channels, built-in
// algorithms (xgboost-style gradient boosted trees, linear-learner ridge
// regression) run as managed training jobs, and trained models are served
// from hosted inference endpoints over HTTP.
//
// # Quick Start
//
// The end-to-end flow mirrors a notebook walkthrough:
//
//	sess, err := sdk.NewSession(sdk.Config{Region: "us-east-1", Bucket: "skiff-demo"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	imageURI, _ := sess.RetrieveImage("xgboost", "latest")
//	est := sdk.NewEstimator(sess, imageURI)
//	est.SetHyperParameters(map[string]string{
//	    "max_depth": "5", "eta": "0.2", "num_round": "50",
//	})
//	if err := est.Fit(ctx, channels); err != nil {
//	    log.Fatal(err)
//	}
//
//	predictor, _ := est.Deploy(ctx, "housing-endpoint")
//	predictions, _ := predictor.Predict(ctx, testFeatures)
//	predictor.DeleteEndpoint(ctx)
//
// # Packages
//
// - sdk: Session, Estimator and Predictor, the high-level client surface
// - platform/training: managed training jobs over a bounded worker pool
// - platform/serving: hosted endpoints serving POST /invocations over HTTP
// - platform/registry: built-in algorithm images and their bindings
// - blob: object storage (disk, memory, S3)
// - gbt, linear: the built-in algorithm implementations
// - dataset: the housing walkthrough data and CSV channel codecs
// - viz: evaluation plots
//
// Run the full walkthrough with:
//
//	go run ./cmd/skiff-walkthrough
package skiff
