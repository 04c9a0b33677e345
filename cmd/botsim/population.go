package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/udisondev/botsim/internal/bot"
	"github.com/udisondev/botsim/internal/config"
	"github.com/udisondev/botsim/internal/geo"
	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/sim"
)

const (
	botFaction      uint32 = 1
	creatureFaction uint32 = 99

	wallHeight    = 10
	wallThickness = 2
)

// population seeds every map with bots, creatures, chests and walls, and
// tops creatures and chests back up as they are killed and looted.
type population struct {
	cfg       config.Bots
	rng       *rand.Rand
	obstacles *geo.ObstacleMap
	roster    *bot.Roster
}

func newPopulation(cfg config.Bots, obstacles *geo.ObstacleMap, roster *bot.Roster) *population {
	return &population{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		obstacles: obstacles,
		roster:    roster,
	}
}

func (p *population) point() model.Position {
	return model.NewPosition(p.rng.Float64()*p.cfg.AreaSize, p.rng.Float64()*p.cfg.AreaSize, 0)
}

// seed fills mapID. The map must already be added to w.
func (p *population) seed(w *sim.World, mapID uint32) error {
	for range p.cfg.Walls {
		x, y := p.rng.Float64()*p.cfg.AreaSize, p.rng.Float64()*p.cfg.AreaSize
		length := 20 + p.rng.Float64()*40
		if p.rng.IntN(2) == 0 {
			p.obstacles.BlockRect(mapID, x, y, x+length, y+wallThickness, wallHeight)
		} else {
			p.obstacles.BlockRect(mapID, x, y, x+wallThickness, y+length, wallHeight)
		}
	}

	for range p.cfg.Count {
		u := unit(botFaction)
		u.Level = uint8(1 + p.rng.IntN(10))
		id, err := w.SpawnPlayer(mapID, p.point(), u, model.PlayerInfo{
			Class: uint8(1 + p.rng.IntN(4)),
			IsBot: true,
		})
		if err != nil {
			return fmt.Errorf("spawning bot on map %d: %w", mapID, err)
		}
		p.roster.Register(mapID, id)
	}

	if _, err := p.replenishMap(w, mapID); err != nil {
		return err
	}
	slog.Info("map populated",
		"map", mapID,
		"bots", p.cfg.Count,
		"creatures", p.cfg.Creatures,
		"chests", p.cfg.Chests,
		"obstacle_columns", p.obstacles.Columns(mapID))
	return nil
}

// replenish restores creature and chest counts on every map. Runs on the
// authoritative goroutine through Authority.Do.
func (p *population) replenish(w *sim.World) {
	for _, mapID := range w.Maps() {
		n, err := p.replenishMap(w, mapID)
		if err != nil {
			slog.Error("replenishing map", "map", mapID, "error", err)
			continue
		}
		if n > 0 && bot.IsDebugEnabled() {
			slog.Debug("map replenished", "map", mapID, "spawned", n)
		}
	}
}

func (p *population) replenishMap(w *sim.World, mapID uint32) (int, error) {
	var (
		creatures, chests int
		emptied           []model.EntityID
	)
	w.Each(func(e *sim.Entity) {
		if e.MapID != mapID {
			return
		}
		switch {
		case e.Kind == model.KindCreature:
			creatures++
		case e.Kind == model.KindGameObject && e.GameObject.Type == model.GOChest:
			if e.GameObject.Lootable {
				chests++
			} else {
				emptied = append(emptied, e.ID)
			}
		}
	})
	// looted chests make room for fresh ones
	for _, id := range emptied {
		w.Despawn(id)
	}

	spawned := 0
	for ; creatures < p.cfg.Creatures; creatures++ {
		u := unit(creatureFaction)
		u.Health, u.MaxHealth = 50, 50
		u.Power, u.MaxPower = 0, 0
		u.MoveSpeed = 5
		u.Level = uint8(1 + p.rng.IntN(10))
		info := model.CreatureInfo{Entry: uint32(1 + p.rng.IntN(8)), Elite: p.rng.IntN(20) == 0}
		if info.Elite {
			u.Health, u.MaxHealth = 150, 150
		}
		if _, err := w.SpawnCreature(mapID, p.point(), u, info); err != nil {
			return spawned, fmt.Errorf("spawning creature on map %d: %w", mapID, err)
		}
		spawned++
	}
	for ; chests < p.cfg.Chests; chests++ {
		info := model.GameObjectInfo{Entry: 1, Type: model.GOChest, Spawned: true, Lootable: true}
		if _, err := w.SpawnGameObject(mapID, p.point(), info); err != nil {
			return spawned, fmt.Errorf("spawning chest on map %d: %w", mapID, err)
		}
		spawned++
	}
	return spawned, nil
}

func unit(faction uint32) model.UnitState {
	return model.UnitState{
		Health:    100,
		MaxHealth: 100,
		Power:     100,
		MaxPower:  100,
		PowerType: model.PowerMana,
		Level:     1,
		Faction:   faction,
		Alive:     true,
		MoveSpeed: 7,
	}
}
