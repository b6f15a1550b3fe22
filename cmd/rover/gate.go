package main

import (
	"sync/atomic"

	"github.com/teslashibe/go-rover/pkg/teleop"
)

// commandGate forwards web commands to the publisher once it exists.
// Commands arriving earlier are dropped.
type commandGate struct {
	pub atomic.Pointer[teleop.Publisher]
}

func (g *commandGate) set(p *teleop.Publisher) {
	g.pub.Store(p)
}

func (g *commandGate) Update(x, y, z, th, speed, turn float64) {
	if p := g.pub.Load(); p != nil {
		p.Update(x, y, z, th, speed, turn)
	}
}

func (g *commandGate) Stats() teleop.Stats {
	if p := g.pub.Load(); p != nil {
		return p.Stats()
	}
	return teleop.Stats{State: "waiting"}
}
