// Package ollama enriches a finished report with an LLM-written analysis
// from a local ollama instance. It can manage the server lifecycle itself:
// start `ollama serve` when nothing answers, pull the model, and stop only
// what it started.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/tinytelemetry/triage/internal/model"
)

const (
	// DefaultEndpoint is the standard local ollama address.
	DefaultEndpoint = "http://localhost:11434"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "llama3.1:8b"
	// DefaultTimeout bounds one generate call.
	DefaultTimeout = 5 * time.Minute

	startupProbeInterval = time.Second
	startupProbeAttempts = 30
)

// Config holds summarizer parameters.
type Config struct {
	Endpoint   string
	Model      string
	AutoManage bool // start/stop ollama serve as needed
	Timeout    time.Duration
}

// Summarizer produces a prose analysis of a ranked report.
type Summarizer struct {
	conf    Config
	http    *http.Client
	serve   *exec.Cmd // non-nil only when we started the server
	started bool
}

// NewSummarizer applies defaults and builds a summarizer.
func NewSummarizer(conf Config) *Summarizer {
	if conf.Endpoint == "" {
		conf.Endpoint = DefaultEndpoint
	}
	if conf.Model == "" {
		conf.Model = DefaultModel
	}
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultTimeout
	}
	return &Summarizer{
		conf: conf,
		http: &http.Client{Timeout: conf.Timeout},
	}
}

// Name identifies the summarizer in logs.
func (s *Summarizer) Name() string { return "ollama" }

// Start ensures an ollama server is answering, launching one when
// auto-manage is on, and makes sure the model is present.
func (s *Summarizer) Start(ctx context.Context) error {
	if s.running(ctx) {
		return s.ensureModel(ctx)
	}
	if !s.conf.AutoManage {
		return fmt.Errorf("ollama: no server at %s and auto-manage is off", s.conf.Endpoint)
	}
	if _, err := exec.LookPath("ollama"); err != nil {
		return fmt.Errorf("ollama: binary not found: %w", err)
	}

	cmd := exec.Command("ollama", "serve")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ollama: start serve: %w", err)
	}
	s.serve = cmd
	s.started = true
	log.Printf("ollama: started serve (pid %d)", cmd.Process.Pid)

	for i := 0; i < startupProbeAttempts; i++ {
		select {
		case <-ctx.Done():
			s.Stop()
			return fmt.Errorf("ollama: waiting for server: %w", ctx.Err())
		case <-time.After(startupProbeInterval):
		}
		if s.running(ctx) {
			return s.ensureModel(ctx)
		}
	}
	s.Stop()
	return fmt.Errorf("ollama: server did not come up at %s", s.conf.Endpoint)
}

// Stop terminates the server if this summarizer started it. A server that
// was already running is left alone.
func (s *Summarizer) Stop() {
	if !s.started || s.serve == nil || s.serve.Process == nil {
		return
	}
	log.Printf("ollama: stopping serve (pid %d)", s.serve.Process.Pid)
	_ = s.serve.Process.Kill()
	_ = s.serve.Wait()
	s.serve = nil
	s.started = false
}

// running probes the tags endpoint with a short deadline.
func (s *Summarizer) running(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, s.conf.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ensureModel pulls the configured model unless the server already has it.
func (s *Summarizer) ensureModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.conf.Endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build tags request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: list models: %w", err)
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("ollama: decode tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == s.conf.Model || strings.HasPrefix(m.Name, s.conf.Model+":") {
			return nil
		}
	}

	log.Printf("ollama: pulling model %s", s.conf.Model)
	cmd := exec.CommandContext(ctx, "ollama", "pull", s.conf.Model)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ollama: pull %s: %w: %s", s.conf.Model, err, out)
	}
	return nil
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize sends the report's key aggregates to the model and returns its
// prose analysis.
func (s *Summarizer) Summarize(ctx context.Context, rep *model.RankedReport) (string, error) {
	prompt, err := buildPrompt(rep)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Model:  s.conf.Model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.3,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.conf.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama: generate returned %d: %s", resp.StatusCode, msg)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("ollama: decode generate response: %w", err)
	}
	if strings.TrimSpace(decoded.Response) == "" {
		return "", fmt.Errorf("ollama: empty response from model %s", s.conf.Model)
	}
	return decoded.Response, nil
}

// buildPrompt condenses the report into a bounded analysis request. Only
// ranked heads go in; raw samples are already capped upstream.
func buildPrompt(rep *model.RankedReport) (string, error) {
	services := make([]string, 0, len(rep.Services))
	for _, svc := range rep.Services {
		services = append(services, svc.Service)
	}

	patterns := rep.GlobalPatterns
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	patternsJSON, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ollama: marshal patterns: %w", err)
	}
	criticalsJSON, err := json.MarshalIndent(rep.CriticalSample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ollama: marshal criticals: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze these error logs from a production system and provide insights:\n\n")
	fmt.Fprintf(&b, "Total Entries: %d\n", rep.TotalCount)
	fmt.Fprintf(&b, "Services Affected: %s\n", strings.Join(services, ", "))
	fmt.Fprintf(&b, "Critical Errors: %d\n\n", rep.CriticalCount)
	fmt.Fprintf(&b, "Top Error Patterns:\n%s\n\n", patternsJSON)
	fmt.Fprintf(&b, "Critical Errors:\n%s\n\n", criticalsJSON)
	b.WriteString("Please provide:\n")
	b.WriteString("1. Root Cause Analysis\n")
	b.WriteString("2. Impact Assessment\n")
	b.WriteString("3. Immediate Actions Required\n")
	b.WriteString("4. Long-term Recommendations\n")
	b.WriteString("5. Service Priority Ranking\n")
	return b.String(), nil
}
