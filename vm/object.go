package vm

import "fmt"

// VFun is a compiled function: its arity, the number of upvalues its
// closures must capture, and the chunk of bytecode that implements it.
// The script itself is compiled into a VFun with a nil name.
type VFun struct {
	name     *string
	arity    int
	upvalCnt int
	chunk    *Chunk
}

func NewVFun() *VFun { return &VFun{chunk: NewChunk()} }

func (_ *VFun) isValue() {}

// Chunk exposes the function's own compiled bytecode, for tooling
// (disassembly, tests asserting on emitted opcodes) that has no other way
// to reach past the closed Value interface.
func (f *VFun) Chunk() *Chunk { return f.chunk }

func (f *VFun) Name() string {
	if f.name == nil {
		return "<script>"
	}
	return *f.name
}

func (f *VFun) String() string {
	if f.name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", *f.name)
}

// Disassemble renders this function's own chunk, named as it would appear
// when called. It does not recurse into nested functions' chunks, matching
// clox's disassembleChunk being called once per ObjFunction as each one
// finishes compiling.
func (f *VFun) Disassemble() string { return f.chunk.Disassemble(f.Name()) }

// upvalueCell is the runtime counterpart of a compile-time Upvalue
// descriptor. While open it aliases a slot on the VM's value stack; once
// the local it refers to goes out of scope, endScope's OP_CLOSE_UPVALUE
// (or a returning call frame) closes it, copying the value out so it
// survives the stack slot being reused.
type upvalueCell struct {
	vm     *VM
	slot   int
	closed Value
	isOpen bool
}

func newOpenUpvalue(vm *VM, slot int) *upvalueCell {
	return &upvalueCell{vm: vm, slot: slot, isOpen: true}
}

func (u *upvalueCell) get() Value {
	if u.isOpen {
		return u.vm.stack[u.slot]
	}
	return u.closed
}

func (u *upvalueCell) set(v Value) {
	if u.isOpen {
		u.vm.stack[u.slot] = v
		return
	}
	u.closed = v
}

func (u *upvalueCell) close() {
	u.closed = u.vm.stack[u.slot]
	u.isOpen = false
}

// VClosure pairs a compiled function with the upvalue cells it captured
// at the point it was created, per the CLOSURE opcode's trailer.
type VClosure struct {
	fun      *VFun
	upvalues []*upvalueCell
}

func NewVClosure(fun *VFun) *VClosure {
	return &VClosure{fun: fun, upvalues: make([]*upvalueCell, fun.upvalCnt)}
}

func (_ *VClosure) isValue()       {}
func (c *VClosure) String() string { return c.fun.String() }
func (c *VClosure) Arity() int     { return c.fun.arity }

// VClass is a runtime class object: its name and its method table, keyed
// by interned method name, inherited methods included. OP_INHERIT copies a
// superclass's table into the subclass's at class-definition time, so
// method lookup at a call site never has to walk a superclass chain.
type VClass struct {
	name    string
	methods map[string]*VClosure
}

func NewVClass(name string) *VClass {
	return &VClass{name: name, methods: map[string]*VClosure{}}
}

func (_ *VClass) isValue()       {}
func (c *VClass) String() string { return fmt.Sprintf("<class %s>", c.name) }

// VInstance is a live object of some VClass, with its own field table.
// Fields shadow methods of the same name when read through OP_GET_PROPERTY.
type VInstance struct {
	class  *VClass
	fields map[string]Value
}

func NewVInstance(class *VClass) *VInstance {
	return &VInstance{class: class, fields: map[string]Value{}}
}

func (_ *VInstance) isValue()       {}
func (i *VInstance) String() string { return fmt.Sprintf("<instanceof %s>", i.class.name) }

// VBoundMethod is the value produced by reading a method off an instance
// without immediately calling it (e.g. `var s = jimmy.speak;`): the
// receiver travels with the method so that a later call still sees the
// right `this`.
type VBoundMethod struct {
	receiver Value
	method   *VClosure
}

func (_ *VBoundMethod) isValue()       {}
func (b *VBoundMethod) String() string { return b.method.String() }
