// Package embedding wraps the local inference runtime behind a provider that
// picks the compute device at startup and degrades to CPU on device faults.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"mathchat-backend/config"
	"mathchat-backend/utils"
)

const (
	defaultBatchSize = 10
	probeTimeout     = 30 * time.Second

	// Embedded once to discover the vector dimension; different configured
	// models yield different dimensions, so it is never hard-coded.
	dimensionProbe = "dimension probe"
)

type Device string

const (
	DeviceGPU Device = "gpu"
	DeviceCPU Device = "cpu"
)

type newEmbedderFunc func(device Device) (embeddings.Embedder, error)

// Provider embeds text on the runtime's GPU when the startup probe succeeds,
// otherwise on CPU. A device fault during a call reinitializes on CPU and
// retries that call exactly once; a second failure propagates.
type Provider struct {
	newEmbedder newEmbedderFunc

	mu       sync.RWMutex
	embedder embeddings.Embedder
	device   Device

	dimMu sync.Mutex
	dim   int
}

func NewProvider(ctx context.Context, cfg config.Embedding) (*Provider, error) {
	p := &Provider{
		newEmbedder: func(device Device) (embeddings.Embedder, error) {
			return newOllamaEmbedder(cfg, device)
		},
	}
	if err := p.init(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newOllamaEmbedder(cfg config.Embedding, device Device) (embeddings.Embedder, error) {
	opts := []ollama.Option{
		ollama.WithServerURL(cfg.ServerURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(utils.DefaultHTTPClient()),
	}
	if device == DeviceCPU {
		// Pin the runner to CPU; the default lets the runtime offload to GPU.
		opts = append(opts, ollama.WithRunnerNumGPU(0))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(defaultBatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// init probes the GPU path with a real embedding call and falls back to CPU
// when the probe fails. The probe result doubles as the dimension sample.
func (p *Provider) init(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	gpu, err := p.newEmbedder(DeviceGPU)
	if err == nil {
		vec, probeErr := gpu.EmbedQuery(probeCtx, dimensionProbe)
		if probeErr == nil {
			slog.Info("embedding provider initialized", "device", DeviceGPU, "dimension", len(vec))
			p.embedder = gpu
			p.device = DeviceGPU
			p.dim = len(vec)
			return nil
		}
		slog.Warn("GPU embedding probe failed, using CPU", "err", probeErr)
	} else {
		slog.Warn("GPU embedder unavailable, using CPU", "err", err)
	}

	cpu, err := p.newEmbedder(DeviceCPU)
	if err != nil {
		return fmt.Errorf("failed to initialize CPU embedder: %w", err)
	}
	p.embedder = cpu
	p.device = DeviceCPU
	slog.Info("embedding provider initialized", "device", DeviceCPU)
	return nil
}

func (p *Provider) current() embeddings.Embedder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.embedder
}

func (p *Provider) Device() Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.device
}

// fallbackToCPU swaps the shared embedder for a CPU-pinned one. Concurrent
// device faults reinitialize once: later callers find the device already
// switched and simply retry against the fixed instance.
func (p *Provider) fallbackToCPU(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == DeviceCPU {
		return
	}

	slog.Warn("device fault during embedding, reinitializing on CPU", "err", cause)
	cpu, err := p.newEmbedder(DeviceCPU)
	if err != nil {
		slog.Error("failed to reinitialize embedder on CPU", "err", err)
		return
	}
	p.embedder = cpu
	p.device = DeviceCPU
}

// isDeviceFault distinguishes runtime/hardware faults from programming
// errors; only the former justify a CPU retry.
func isDeviceFault(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cuda") ||
		strings.Contains(msg, "device-side assert") ||
		strings.Contains(msg, "out of gpu memory")
}

func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(
		func() error {
			v, err := p.current().EmbedDocuments(ctx, texts)
			if err != nil {
				return err
			}
			vectors = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
		retry.RetryIf(isDeviceFault),
		retry.OnRetry(func(_ uint, err error) {
			p.fallbackToCPU(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d documents: %w", len(texts), err)
	}
	return vectors, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := retry.Do(
		func() error {
			v, err := p.current().EmbedQuery(ctx, text)
			if err != nil {
				return err
			}
			vector = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
		retry.RetryIf(isDeviceFault),
		retry.OnRetry(func(_ uint, err error) {
			p.fallbackToCPU(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}

// Dimension reports the vector dimension, derived empirically on first use.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	p.dimMu.Lock()
	defer p.dimMu.Unlock()

	if p.dim > 0 {
		return p.dim, nil
	}

	vec, err := p.EmbedQuery(ctx, dimensionProbe)
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	p.dim = len(vec)
	return p.dim, nil
}
