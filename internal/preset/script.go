package preset

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// LoadScript runs a Lua file that returns a list of pad tables and converts
// the result into pads:
//
//	local log = require("log")
//	log.info("building pads")
//	return {
//	  { label = "Off", type = "off" },
//	  { label = "Chase", type = "effectByName", effectName = "Chase", defaultSx = 200 },
//	}
func LoadScript(path string) ([]Pad, error) {
	L := lua.NewState()
	defer L.Close()

	L.PreloadModule("log", logLoader)

	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("failed to run preset script %s: %w", path, err)
	}
	return padsFromLua(L.Get(-1))
}

// LoadScriptString is LoadScript for inline source.
func LoadScriptString(src string) ([]Pad, error) {
	L := lua.NewState()
	defer L.Close()

	L.PreloadModule("log", logLoader)

	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("failed to run preset script: %w", err)
	}
	return padsFromLua(L.Get(-1))
}

func padsFromLua(v lua.LValue) ([]Pad, error) {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("preset script must return a table, got %s", v.Type())
	}

	// Lua tables go through the same JSON shape as stored documents.
	data, err := json.Marshal(luaToGo(tbl))
	if err != nil {
		return nil, fmt.Errorf("failed to encode script pads: %w", err)
	}
	var pads []Pad
	if err := json.Unmarshal(data, &pads); err != nil {
		return nil, fmt.Errorf("preset script must return a list of pads: %w", err)
	}
	if len(pads) == 0 {
		return nil, fmt.Errorf("preset script returned no pads")
	}
	for _, p := range pads {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return pads, nil
}

// luaToGo converts a Lua value to a Go value
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		// Check if it's an array or object
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ lua.LValue) {
			if num, ok := k.(lua.LNumber); ok {
				if idx := int(num); idx > maxIdx {
					maxIdx = idx
				}
			} else {
				isArray = false
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v lua.LValue) {
				if num, ok := k.(lua.LNumber); ok && int(num) >= 1 {
					arr[int(num)-1] = luaToGo(v)
				}
			})
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			obj[lua.LVAsString(k)] = luaToGo(v)
		})
		return obj
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

// logLoader exposes zerolog to preset scripts as require("log").
func logLoader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(func(L *lua.LState) int {
		log.Debug().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "info", L.NewFunction(func(L *lua.LState) int {
		log.Info().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "warn", L.NewFunction(func(L *lua.LState) int {
		log.Warn().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.Push(mod)
	return 1
}
