package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/bot"
	"github.com/udisondev/botsim/internal/config"
	"github.com/udisondev/botsim/internal/geo"
	"github.com/udisondev/botsim/internal/sim"
	"github.com/udisondev/botsim/internal/spatial"
)

const replenishInterval = 5 * time.Second

// app is the simulation core: live world, authority and decision loop.
type app struct {
	cfg       config.Config
	registry  *spatial.Registry
	queue     *action.Queue
	obstacles *geo.ObstacleMap
	authority *sim.Authority
	roster    *bot.Roster
	loop      *bot.Loop
	pop       *population
}

// newApp builds the world from cfg, publishes every map and prepares the
// decision loop. Sinks receive every tick report.
func newApp(cfg config.Config, sinks ...sim.OutcomeSink) (*app, error) {
	a := &app{
		cfg: cfg,
		registry: spatial.NewRegistry(spatial.Options{
			CellSize: cfg.Spatial.CellSize,
			Shards:   cfg.Spatial.WriteShards,
		}),
		queue:     action.NewQueue(cfg.Queue.Capacity),
		obstacles: geo.NewObstacleMap(geo.DefaultResolution, geo.DefaultEyeHeight),
		roster:    bot.NewRoster(),
	}
	a.pop = newPopulation(cfg.Bots, a.obstacles, a.roster)

	world := sim.NewWorld()
	rules := sim.NewBasicRules(world, rulesConfig(cfg.Rules), sim.DefaultSpells()...)

	var los action.LineOfSight
	if cfg.Validation.LineOfSight {
		los = a.obstacles
	}
	validator := action.NewValidator(rules, los, action.ValidatorConfig{
		GlobalCooldown: cfg.Validation.GlobalCooldown,
		DefaultSkip:    cfg.Validation.DefaultSkip,
	})

	a.authority = sim.NewAuthority(sim.AuthorityConfig{
		TickInterval: cfg.TickInterval,
		WriteWorkers: cfg.Spatial.WriteWorkers,
	}, world, rules, validator, a.queue, a.registry, sinks...)

	for _, mapID := range cfg.Maps {
		world.AddMap(mapID)
		if err := a.pop.seed(world, mapID); err != nil {
			a.registry.Close()
			return nil, err
		}
		gen, err := a.authority.LoadMap(mapID)
		if err != nil {
			a.registry.Close()
			return nil, fmt.Errorf("loading map %d: %w", mapID, err)
		}
		slog.Info("map loaded", "map", mapID, "entities", world.MapLen(mapID), "generation", gen)
	}

	factory, err := brainFactory(cfg)
	if err != nil {
		a.registry.Close()
		return nil, err
	}
	a.loop, err = bot.NewLoop(bot.LoopConfig{
		Workers:   cfg.Workers.Count,
		Interval:  cfg.Workers.Interval,
		ChunkSize: cfg.Workers.ChunkSize,
	}, a.roster, a.registry, a.queue, factory)
	if err != nil {
		a.registry.Close()
		return nil, fmt.Errorf("creating decision loop: %w", err)
	}
	return a, nil
}

func rulesConfig(r config.Rules) sim.RulesConfig {
	rc := sim.DefaultRulesConfig()
	rc.MeleeRange = r.MeleeRange
	rc.InteractRange = r.InteractRange
	rc.MoveReach = r.MoveReach
	rc.MaxMoveStep = r.MaxMoveStep
	rc.MeleeDamage = r.MeleeDamage
	rc.PowerRegen = r.PowerRegen
	rc.CombatTimeout = r.CombatTimeout
	rc.CorpseDecay = r.CorpseDecay
	return rc
}

func brainFactory(cfg config.Config) (bot.BrainFactory, error) {
	switch cfg.Bots.Brain {
	case "lua":
		f, err := bot.LuaFactory(cfg.Bots.Script, cfg.Bots.SightRadius)
		if err != nil {
			return nil, fmt.Errorf("loading bot script: %w", err)
		}
		return f, nil
	default:
		ac := bot.DefaultAggroConfig()
		ac.SightRadius = cfg.Bots.SightRadius
		ac.MeleeRange = cfg.Rules.MeleeRange
		ac.MoveStep = min(ac.MoveStep, cfg.Rules.MaxMoveStep)
		return bot.AggroFactory(ac), nil
	}
}

// start runs the authority, the decision loop and the replenisher in g.
func (a *app) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		if err := a.authority.Run(ctx); err != nil {
			return fmt.Errorf("authority: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.loop.Run(ctx); err != nil {
			return fmt.Errorf("decision loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(replenishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.authority.Do(a.pop.replenish)
			}
		}
	})
}

// close releases what start's goroutines leave behind. Call after they return.
func (a *app) close() {
	a.queue.Close()
	a.loop.Close()
	a.registry.Close()

	st := a.loop.Stats()
	qs := a.queue.Stats()
	slog.Info("simulation stopped",
		"passes", st.Passes,
		"decisions", st.Decisions,
		"enqueued", st.Enqueued,
		"refused", qs.Refused,
		"drained", qs.Drained)
}
