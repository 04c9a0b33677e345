package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/udisondev/botsim/internal/action"
	"github.com/udisondev/botsim/internal/model"
	"github.com/udisondev/botsim/internal/spatial"
)

// DecideFunc is the global a bot script must define.
const DecideFunc = "bot_decide"

// ErrScriptMissing is returned when a script does not define DecideFunc.
var ErrScriptMissing = errors.New("bot script does not define " + DecideFunc)

// LuaBrain runs bot_decide(ctx) from a Lua script. The VM is not goroutine
// safe, so every worker owns its own LuaBrain.
//
// ctx carries the bot's own fields and a "nearby" array of every snapshot
// within the sight radius. Entity IDs cross into Lua as decimal strings
// because they do not fit a Lua number. The function returns an array of
// commands:
//
//	{type="cast", spell=1, target=id} or {type="cast", spell=1, x=, y=, z=}
//	{type="move", x=, y=, z=}
//	{type="attack", target=id}
//	{type="interact", target=id}
//	{type="loot", target=id}
type LuaBrain struct {
	name   string
	vm     *lua.LState
	fn     lua.LValue
	radius float64
	buf    []model.Snapshot
}

// NewLuaBrain compiles source in a fresh VM.
func NewLuaBrain(name, source string, sightRadius float64) (*LuaBrain, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	if err := vm.DoString(source); err != nil {
		vm.Close()
		return nil, fmt.Errorf("loading script %s: %w", name, err)
	}
	fn := vm.GetGlobal(DecideFunc)
	if fn.Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("loading script %s: %w", name, ErrScriptMissing)
	}
	return &LuaBrain{
		name:   name,
		vm:     vm,
		fn:     fn,
		radius: sightRadius,
		buf:    make([]model.Snapshot, 0, 32),
	}, nil
}

// LuaFactory reads the script at path once and returns a factory compiling
// it into one VM per worker. The script is compiled once up front so a
// broken script fails at startup.
func LuaFactory(path string, sightRadius float64) (BrainFactory, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bot script: %w", err)
	}
	trial, err := NewLuaBrain(path, string(src), sightRadius)
	if err != nil {
		return nil, err
	}
	trial.Close()

	return func(int) (Brain, error) {
		return NewLuaBrain(path, string(src), sightRadius)
	}, nil
}

// Close releases the VM.
func (b *LuaBrain) Close() error {
	b.vm.Close()
	return nil
}

// Decide implements Brain. Script errors are logged and yield no requests.
func (b *LuaBrain) Decide(view View, self model.Snapshot) []action.Request {
	ctx := b.context(view, self)

	if err := b.vm.CallByParam(lua.P{
		Fn:      b.fn,
		NRet:    1,
		Protect: true,
	}, ctx); err != nil {
		slog.Error("lua bot_decide error", "script", b.name, "bot", self.ID, "error", err)
		return nil
	}
	result := b.vm.Get(-1)
	b.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}

	var reqs []action.Request
	rt.ForEach(func(_, v lua.LValue) {
		row, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		req, err := b.command(view.MapID(), self.ID, row)
		if err != nil {
			if IsDebugEnabled() {
				slog.Debug("lua command dropped", "script", b.name, "bot", self.ID, "error", err)
			}
			return
		}
		reqs = append(reqs, req)
	})
	return reqs
}

func (b *LuaBrain) context(view View, self model.Snapshot) *lua.LTable {
	t := b.vm.NewTable()
	t.RawSetString("map_id", lua.LNumber(view.MapID()))
	t.RawSetString("generation", lua.LNumber(view.Generation()))
	t.RawSetString("self", b.entity(self, self.Pos))

	nearby := b.vm.NewTable()
	b.buf = view.Query(b.buf[:0], model.KindAny, spatial.Sphere{Center: self.Pos, Radius: b.radius})
	n := 0
	for i := range b.buf {
		s := &b.buf[i]
		if s.ID == self.ID {
			continue
		}
		row := b.entity(*s, self.Pos)
		row.RawSetString("hostile", lua.LBool(self.IsHostileTo(s)))
		n++
		nearby.RawSetInt(n, row)
	}
	t.RawSetString("nearby", nearby)
	return t
}

func (b *LuaBrain) entity(s model.Snapshot, origin model.Position) *lua.LTable {
	row := b.vm.NewTable()
	row.RawSetString("id", lua.LString(strconv.FormatUint(uint64(s.ID), 10)))
	row.RawSetString("kind", lua.LString(s.Kind.String()))
	row.RawSetString("x", lua.LNumber(s.Pos.X))
	row.RawSetString("y", lua.LNumber(s.Pos.Y))
	row.RawSetString("z", lua.LNumber(s.Pos.Z))
	row.RawSetString("dist", lua.LNumber(origin.Distance(s.Pos)))
	row.RawSetString("alive", lua.LBool(s.IsAlive()))

	if u, ok := s.Unit(); ok {
		row.RawSetString("hp", lua.LNumber(u.Health))
		row.RawSetString("max_hp", lua.LNumber(u.MaxHealth))
		row.RawSetString("power", lua.LNumber(u.Power))
		row.RawSetString("max_power", lua.LNumber(u.MaxPower))
		row.RawSetString("level", lua.LNumber(u.Level))
		row.RawSetString("faction", lua.LNumber(u.Faction))
		row.RawSetString("in_combat", lua.LBool(u.InCombat))
		row.RawSetString("casting", lua.LBool(u.Casting))
	}
	if c, ok := s.AsCreature(); ok {
		row.RawSetString("entry", lua.LNumber(c.Entry))
		row.RawSetString("elite", lua.LBool(c.Elite))
	}
	if g, ok := s.AsGameObject(); ok {
		row.RawSetString("entry", lua.LNumber(g.Entry))
		row.RawSetString("lootable", lua.LBool(g.Spawned && g.Lootable))
	}
	return row
}

func (b *LuaBrain) command(mapID uint32, self model.EntityID, row *lua.LTable) (action.Request, error) {
	kind, ok := action.ParseKind(lua.LVAsString(row.RawGetString("type")))
	if !ok {
		return action.Request{}, fmt.Errorf("unknown command type %q", lua.LVAsString(row.RawGetString("type")))
	}

	switch kind {
	case action.KindMove:
		return action.Move(self, mapID, point(row)), nil
	case action.KindCast:
		spell := uint32(lua.LVAsNumber(row.RawGetString("spell")))
		if row.RawGetString("target") == lua.LNil {
			return action.Cast(self, mapID, spell, action.TargetPoint(point(row))), nil
		}
		target, err := entityID(row)
		if err != nil {
			return action.Request{}, err
		}
		return action.Cast(self, mapID, spell, action.TargetEntity(target)), nil
	default:
		target, err := entityID(row)
		if err != nil {
			return action.Request{}, err
		}
		return action.Request{Requester: self, MapID: mapID, Kind: kind, Target: action.TargetEntity(target)}, nil
	}
}

func point(row *lua.LTable) model.Position {
	return model.NewPosition(
		float64(lua.LVAsNumber(row.RawGetString("x"))),
		float64(lua.LVAsNumber(row.RawGetString("y"))),
		float64(lua.LVAsNumber(row.RawGetString("z"))),
	)
}

func entityID(row *lua.LTable) (model.EntityID, error) {
	raw := lua.LVAsString(row.RawGetString("target"))
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return model.NoEntity, fmt.Errorf("bad target %q: %w", raw, err)
	}
	return model.EntityID(v), nil
}
