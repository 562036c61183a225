// Package inference defines the contract with the downstream compute
// backend and its SageMaker implementation. The backend is consumed as an
// opaque "submit a unit of work" surface: hand it an endpoint identifier
// and an input location, get back an inference id and the two storage
// locations it will eventually write (output on success, failure payload
// on error). Nothing here waits for the work to finish.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
)

// Request identifies a unit of work for the backend.
type Request struct {
	// EndpointName is the named downstream model endpoint.
	EndpointName string
	// InputLocation is the store-native URI of the job input document.
	InputLocation string
}

// Response is the backend's tracking handle for accepted work.
type Response struct {
	InferenceID     string
	OutputLocation  string
	FailureLocation string
}

// Invoker submits asynchronous work to the compute backend.
type Invoker interface {
	InvokeAsync(ctx context.Context, req Request) (*Response, error)
}

// smAPI is the slice of the SageMaker runtime client used here.
type smAPI interface {
	InvokeEndpointAsync(ctx context.Context, in *sagemakerruntime.InvokeEndpointAsyncInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointAsyncOutput, error)
}

// SageMakerInvoker implements Invoker against a SageMaker async inference
// endpoint. The invocation call itself is bounded by the configured
// timeout; the inference it starts is not.
type SageMakerInvoker struct {
	api     smAPI
	timeout time.Duration
}

// NewSageMakerInvoker wraps a SageMaker runtime client. timeout bounds each
// InvokeEndpointAsync call.
func NewSageMakerInvoker(client *sagemakerruntime.Client, timeout time.Duration) *SageMakerInvoker {
	return &SageMakerInvoker{api: client, timeout: timeout}
}

// newSageMakerInvokerWithAPI is the test seam.
func newSageMakerInvokerWithAPI(api smAPI, timeout time.Duration) *SageMakerInvoker {
	return &SageMakerInvoker{api: api, timeout: timeout}
}

// InvokeAsync submits the referenced input for asynchronous processing.
func (s *SageMakerInvoker) InvokeAsync(ctx context.Context, req Request) (*Response, error) {
	if req.EndpointName == "" {
		return nil, errors.New("inference: endpoint name not configured")
	}
	if req.InputLocation == "" {
		return nil, errors.New("inference: input location is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.api.InvokeEndpointAsync(ctx, &sagemakerruntime.InvokeEndpointAsyncInput{
		EndpointName:  aws.String(req.EndpointName),
		InputLocation: aws.String(req.InputLocation),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke endpoint %s: %w", req.EndpointName, err)
	}

	resp := &Response{
		InferenceID:     aws.ToString(out.InferenceId),
		OutputLocation:  aws.ToString(out.OutputLocation),
		FailureLocation: aws.ToString(out.FailureLocation),
	}
	if resp.InferenceID == "" || resp.OutputLocation == "" {
		return nil, fmt.Errorf("invoke endpoint %s: incomplete response from backend", req.EndpointName)
	}
	return resp, nil
}
