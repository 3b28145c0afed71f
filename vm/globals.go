package vm

import "github.com/dolthub/swiss"

// Globals is the runtime table backing every OP_GET_GLOBAL/OP_SET_GLOBAL/
// OP_DEFINE_GLOBAL, keyed by the interned variable name. A swiss.Map is
// used rather than a plain Go map because this table is the one
// long-lived, frequently-resized table in the VM (every top-level `var`
// and `fun` lands here, for the lifetime of the program); per-instance
// field tables stay plain maps since they are small and short-lived.
type Globals struct {
	m *swiss.Map[string, Value]
}

func NewGlobals() *Globals {
	return &Globals{m: swiss.NewMap[string, Value](16)}
}

func (g *Globals) Get(name string) (Value, bool) { return g.m.Get(name) }
func (g *Globals) Set(name string, v Value)      { g.m.Put(name, v) }
func (g *Globals) Has(name string) bool          { return g.m.Has(name) }
func (g *Globals) Delete(name string) bool       { return g.m.Delete(name) }
