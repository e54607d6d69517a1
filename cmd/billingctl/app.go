package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/devfurlan/cuidly-sub007/internal/bootstrap"
)

const serviceName = "billingctl"

// app owns the connections opened for one command.
type app struct {
	rt         *bootstrap.Runtime
	components *bootstrap.Components
}

// openApp wires every billing service. Metrics are not registered since the
// process exits before anything could scrape them.
func openApp(ctx context.Context) (*app, error) {
	cfg, logg, err := bootstrap.LoadConfig(serviceName)
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap.Open(ctx, cfg, logg, bootstrap.RuntimeOptions{WithRedis: true})
	if err != nil {
		return nil, err
	}
	components, err := rt.Components(ctx, bootstrap.Params{})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return &app{rt: rt, components: components}, nil
}

func (a *app) Close() {
	if a != nil {
		_ = a.rt.Close()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
