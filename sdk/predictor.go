package sdk

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/dataset"
	"github.com/skiffml/skiff/pkg/errors"
	"github.com/skiffml/skiff/platform/serving"
)

// Predictor sends inference requests to a hosted endpoint over HTTP.
type Predictor struct {
	session  *Session
	endpoint string
	client   *http.Client
}

func newPredictor(session *Session, endpoint string) *Predictor {
	return &Predictor{
		session:  session,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// EndpointName returns the endpoint this predictor targets.
func (p *Predictor) EndpointName() string { return p.endpoint }

// resolveURL checks the endpoint is InService and returns its base URL.
func (p *Predictor) resolveURL(ctx context.Context) (string, error) {
	desc, err := p.session.Serving().DescribeEndpoint(ctx, p.endpoint)
	if err != nil {
		return "", err
	}
	if desc.Status != serving.StatusInService {
		return "", errors.NewEndpointNotReadyError(p.endpoint, string(desc.Status))
	}
	return desc.URL, nil
}

// Predict scores feature rows against the endpoint and returns one
// prediction per row.
func (p *Predictor) Predict(ctx context.Context, X *mat.Dense) (*mat.VecDense, error) {
	url, err := p.resolveURL(ctx)
	if err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	if err := dataset.WriteFeaturesCSV(&payload, X); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/invocations", &payload)
	if err != nil {
		return nil, errors.Wrap(err, "building invocation request")
	}
	req.Header.Set("Content-Type", "text/csv")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "invoking endpoint %q", p.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewModelError("Predictor.Predict",
			"endpoint returned "+resp.Status,
			errors.Newf("%s", bytes.TrimSpace(body)))
	}
	return dataset.ReadPredictions(resp.Body)
}

// Ping issues the endpoint health check.
func (p *Predictor) Ping(ctx context.Context) error {
	url, err := p.resolveURL(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/ping", nil)
	if err != nil {
		return errors.Wrap(err, "building ping request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "pinging endpoint %q", p.endpoint)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewEndpointNotReadyError(p.endpoint, resp.Status)
	}
	return nil
}

// DeleteEndpoint tears the endpoint down. Further Predict calls (and a
// second delete) yield NotFoundError.
func (p *Predictor) DeleteEndpoint(ctx context.Context) error {
	return p.session.Serving().DeleteEndpoint(ctx, p.endpoint)
}
