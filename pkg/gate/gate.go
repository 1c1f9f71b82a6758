package gate

import (
	"context"
	"time"

	"github.com/go-go-golems/bootgate/pkg/probe"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Prober interface {
	Probe(ctx context.Context, spec probe.DependencySpec) error
}

// Gate blocks until every required dependency is ready, one at a time and in
// the order given.
type Gate struct {
	Prober Prober
}

func New(p Prober) *Gate {
	return &Gate{Prober: p}
}

func (g *Gate) Wait(ctx context.Context, specs []probe.DependencySpec) error {
	if g.Prober == nil {
		return errors.New("gate has no prober")
	}
	startedAt := time.Now()
	waited := 0
	for _, spec := range specs {
		if !spec.Required {
			log.Info().Str("dependency", spec.Name).Msgf("skipping %s: not required", spec.Name)
			continue
		}
		if err := g.Prober.Probe(ctx, spec); err != nil {
			return err
		}
		waited++
	}
	log.Info().Int("dependencies", waited).Dur("elapsed", time.Since(startedAt)).Msg("all required dependencies ready")
	return nil
}
