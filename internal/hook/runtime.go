package hook

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/logger"
)

// Runtime runs a Lua region hook. The script defines a global
//
//	function process_region(region) ... end
//
// receiving {id, name, disputed, admin0, sov, feature_class}. Returning a
// table applies its name and disputed fields; returning nil keeps the
// region unchanged.
type Runtime struct {
	L             *lua.LState
	mu            sync.Mutex
	processRegion lua.LValue
}

// NewRuntime creates a Lua runtime with the helper functions registered
func NewRuntime() *Runtime {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	r := &Runtime{L: L}
	r.registerAPI()
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

func (r *Runtime) registerAPI() {
	helpers := r.L.NewTable()
	r.L.SetField(helpers, "trim", r.L.NewFunction(luaTrim))
	r.L.SetField(helpers, "title", r.L.NewFunction(luaTitle))
	r.L.SetField(helpers, "contains", r.L.NewFunction(luaContains))
	r.L.SetGlobal("adminraster", helpers)

	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
}

// LoadFile loads and executes a Lua hook file
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	return r.extractCallback()
}

// LoadString loads and executes Lua code from a string
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	return r.extractCallback()
}

func (r *Runtime) extractCallback() error {
	fn := r.L.GetGlobal("process_region")
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("hook script does not define process_region")
	}
	r.processRegion = fn
	return nil
}

// ProcessRegion implements admin.Hook
func (r *Runtime) ProcessRegion(region *admin.Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.processRegion == nil {
		return nil
	}

	if err := r.L.CallByParam(lua.P{
		Fn:      r.processRegion,
		NRet:    1,
		Protect: true,
	}, r.regionToLua(region)); err != nil {
		return fmt.Errorf("lua callback error: %w", err)
	}

	ret := r.L.Get(-1)
	r.L.Pop(1)

	switch v := ret.(type) {
	case *lua.LTable:
		if name := v.RawGetString("name"); name.Type() == lua.LTString {
			region.Name = string(name.(lua.LString))
		}
		if disputed := v.RawGetString("disputed"); disputed.Type() == lua.LTBool {
			region.Disputed = bool(disputed.(lua.LBool))
		}
	case *lua.LNilType:
	default:
		return fmt.Errorf("process_region returned %s, want table or nil", ret.Type())
	}
	return nil
}

func (r *Runtime) regionToLua(region *admin.Region) *lua.LTable {
	tbl := r.L.NewTable()
	tbl.RawSetString("id", lua.LNumber(region.ID))
	tbl.RawSetString("name", lua.LString(region.Name))
	tbl.RawSetString("disputed", lua.LBool(region.Disputed))
	tbl.RawSetString("feature_class", lua.LString(region.FeatureClass))
	if region.Admin0 != nil {
		tbl.RawSetString("admin0", lua.LNumber(*region.Admin0))
	}
	if region.Sov != nil {
		tbl.RawSetString("sov", lua.LNumber(*region.Sov))
	}
	return tbl
}

// luaPrint routes Lua print output to the logger
func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	var parts []string
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	logger.Get().Info("lua", zap.String("message", strings.Join(parts, "\t")))
	return 0
}

func luaTrim(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaTitle upper-cases the first letter of each word
func luaTitle(L *lua.LState) int {
	s := L.CheckString(1)
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	L.Push(lua.LString(strings.Join(words, " ")))
	return 1
}

func luaContains(L *lua.LState) int {
	s := L.CheckString(1)
	sub := L.CheckString(2)
	L.Push(lua.LBool(strings.Contains(s, sub)))
	return 1
}
