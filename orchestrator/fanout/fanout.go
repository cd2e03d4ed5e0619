// Copyright 2025 PolyRoute
// SPDX-License-Identifier: BUSL-1.1

// Package fanout dispatches one prompt to several providers concurrently and
// combines what comes back: synthesis into a single answer, or parallel
// validation with a vote threshold.
package fanout

import (
	"context"
	"log"
	"time"

	"polyroute/platform/orchestrator/cost"
	"polyroute/platform/orchestrator/llm"
)

// DefaultDeadline bounds a fan-out when the caller does not set one
const DefaultDeadline = 30 * time.Second

// Governor is the budget interface the orchestrator consumes
type Governor interface {
	RecordUsageDetail(detail cost.UsageDetail)
}

// Result is the outcome of one provider call within a fan-out
type Result struct {
	Provider string                `json:"provider"`
	Response *llm.GenerateResponse `json:"response,omitempty"`
	Err      error                 `json:"-"`
	Error    string                `json:"error,omitempty"`
	Latency  time.Duration         `json:"latency_ms"`

	// DeadlineExceeded marks a provider that had not answered when the
	// fan-out deadline expired, as opposed to failing on its own.
	DeadlineExceeded bool `json:"deadline_exceeded,omitempty"`
}

// Success reports whether this provider produced a response
func (r Result) Success() bool {
	return r.Err == nil && r.Response != nil
}

// Response is the collected outcome of a fan-out. A fan-out never fails as
// a whole: every targeted provider gets a Result, success or not, in the
// order the providers were requested.
type Response struct {
	Results   []Result      `json:"results"`
	Successes int           `json:"successes"`
	Elapsed   time.Duration `json:"elapsed_ms"`

	// DeadlineExceeded is true when at least one provider was cut off by
	// the fan-out deadline
	DeadlineExceeded bool `json:"deadline_exceeded"`
}

// SuccessfulResults returns the results that produced a response, in
// request order
func (r *Response) SuccessfulResults() []Result {
	successful := make([]Result, 0, len(r.Results))
	for _, result := range r.Results {
		if result.Success() {
			successful = append(successful, result)
		}
	}
	return successful
}

// Orchestrator runs concurrent fan-outs over the provider registry
type Orchestrator struct {
	registry *llm.Registry
	governor Governor
	logger   *log.Logger
	deadline time.Duration
}

// New creates an orchestrator. A zero deadline selects DefaultDeadline.
func New(registry *llm.Registry, governor Governor, deadline time.Duration, logger *log.Logger) *Orchestrator {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		registry: registry,
		governor: governor,
		logger:   logger,
		deadline: deadline,
	}
}

// indexed carries a goroutine's result back with its slot position
type indexed struct {
	pos    int
	result Result
}

// FanOut sends the request to every named provider concurrently and collects
// results until all respond or the deadline passes. A deadline of zero or
// less selects the orchestrator's configured deadline. Providers that have
// not answered by the deadline get a timeout Result marked DeadlineExceeded;
// unavailable providers get an error Result without being called. Each
// successful call is charged to the governor.
func (o *Orchestrator) FanOut(ctx context.Context, providers []string, req llm.GenerateRequest, deadline time.Duration) *Response {
	start := time.Now()

	if deadline <= 0 {
		deadline = o.deadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make([]Result, len(providers))
	ch := make(chan indexed, len(providers))
	pending := 0

	for i, name := range providers {
		provider, err := o.registry.Get(name)
		if err != nil {
			results[i] = Result{Provider: name, Err: err, Error: err.Error()}
			continue
		}

		pending++
		go func(pos int, name string, p llm.Provider) {
			callStart := time.Now()
			resp, err := p.Generate(ctx, req)
			result := Result{
				Provider: name,
				Response: resp,
				Err:      err,
				Latency:  time.Since(callStart),
			}
			if err != nil {
				result.Error = err.Error()
			}
			ch <- indexed{pos: pos, result: result}
		}(i, name, provider)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

collect:
	for pending > 0 {
		select {
		case item := <-ch:
			results[item.pos] = item.result
			pending--
		case <-timer.C:
			break collect
		}
	}

	// Fill slots for providers that never answered. Their goroutines will
	// finish against the cancelled context and drain into the buffered
	// channel without blocking.
	deadlineExceeded := false
	for i, name := range providers {
		if results[i].Provider != "" {
			continue
		}
		perr := llm.NewProviderError(name, llm.ErrCodeTimeout, "no response before fan-out deadline")
		results[i] = Result{Provider: name, Err: perr, Error: perr.Error(), Latency: deadline, DeadlineExceeded: true}
		deadlineExceeded = true
	}

	successes := 0
	for _, result := range results {
		if result.Success() {
			successes++
			if o.governor != nil {
				o.governor.RecordUsageDetail(cost.UsageDetail{
					Provider: result.Provider,
					Tokens:   result.Response.TokensUsed,
					Model:    result.Response.Model,
				})
			}
		}
	}

	elapsed := time.Since(start)
	o.logger.Printf("[FanOut] %d/%d providers succeeded in %s", successes, len(providers), elapsed)

	fanoutRequests.Inc()
	fanoutResults.WithLabelValues("success").Add(float64(successes))
	fanoutResults.WithLabelValues("failure").Add(float64(len(providers) - successes))

	return &Response{
		Results:          results,
		Successes:        successes,
		Elapsed:          elapsed,
		DeadlineExceeded: deadlineExceeded,
	}
}

// FanOutAvailable fans out to every available provider in the registry
func (o *Orchestrator) FanOutAvailable(ctx context.Context, req llm.GenerateRequest, deadline time.Duration) *Response {
	return o.FanOut(ctx, o.registry.ListAvailable(), req, deadline)
}
