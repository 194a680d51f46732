package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
)

type fakeEmbedder struct {
	dim   int
	fail  error
	calls atomic.Int64
}

var _ embeddings.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail != nil {
		return nil, f.fail
	}
	return make([]float32, f.dim), nil
}

func newTestProvider(t *testing.T, gpu, cpu *fakeEmbedder) *Provider {
	t.Helper()
	p := &Provider{
		newEmbedder: func(device Device) (embeddings.Embedder, error) {
			if device == DeviceGPU {
				if gpu == nil {
					return nil, errors.New("no gpu runtime")
				}
				return gpu, nil
			}
			return cpu, nil
		},
	}
	require.NoError(t, p.init(context.Background()))
	return p
}

func TestProbeSelectsGPUWhenHealthy(t *testing.T) {
	gpu := &fakeEmbedder{dim: 384}
	cpu := &fakeEmbedder{dim: 384}

	p := newTestProvider(t, gpu, cpu)
	assert.Equal(t, DeviceGPU, p.Device())

	dim, err := p.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 384, dim)
}

func TestProbeFallsBackToCPU(t *testing.T) {
	gpu := &fakeEmbedder{dim: 384, fail: errors.New("CUDA error: device-side assert triggered")}
	cpu := &fakeEmbedder{dim: 384}

	p := newTestProvider(t, gpu, cpu)
	assert.Equal(t, DeviceCPU, p.Device())
}

func TestDeviceFaultRetriesOnceOnCPU(t *testing.T) {
	gpu := &fakeEmbedder{dim: 8}
	cpu := &fakeEmbedder{dim: 8}
	p := newTestProvider(t, gpu, cpu)

	// The probe succeeded; subsequent GPU calls start failing.
	gpu.fail = errors.New("CUDA out of gpu memory")

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, DeviceCPU, p.Device())
}

func TestNonDeviceErrorPropagatesWithoutFallback(t *testing.T) {
	gpu := &fakeEmbedder{dim: 8}
	cpu := &fakeEmbedder{dim: 8}
	p := newTestProvider(t, gpu, cpu)

	gpu.fail = errors.New("model not found")

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, DeviceGPU, p.Device(), "a programming error must not switch devices")
}

func TestSecondDeviceFaultPropagates(t *testing.T) {
	gpu := &fakeEmbedder{dim: 8}
	cpu := &fakeEmbedder{dim: 8, fail: errors.New("CUDA error again")}
	p := newTestProvider(t, gpu, cpu)

	gpu.fail = errors.New("CUDA error")

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestConcurrentFaultsReinitializeOnce(t *testing.T) {
	gpu := &fakeEmbedder{dim: 8}
	cpu := &fakeEmbedder{dim: 8}

	var builds atomic.Int64
	p := &Provider{
		newEmbedder: func(device Device) (embeddings.Embedder, error) {
			if device == DeviceGPU {
				return gpu, nil
			}
			builds.Add(1)
			return cpu, nil
		},
	}
	require.NoError(t, p.init(context.Background()))
	require.Equal(t, DeviceGPU, p.Device())

	gpu.fail = errors.New("CUDA error: device-side assert triggered")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.EmbedQuery(context.Background(), "q")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), builds.Load(), "CPU embedder must be built exactly once")
	assert.Equal(t, DeviceCPU, p.Device())
}
