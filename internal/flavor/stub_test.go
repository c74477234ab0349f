package flavor

import (
	"context"

	"github.com/rbright/parley/internal/audio"
)

type stubSource struct{}

func (stubSource) Acquire(context.Context, int, func([]float32)) (audio.Stream, error) {
	return stubStream{}, nil
}

type stubStream struct{}

func (stubStream) Stop() error { return nil }
