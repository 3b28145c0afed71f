package vm

import (
	"fmt"

	"github.com/chzyer/readline"
	"github.com/evomassiny/golox/debug"
	e "github.com/evomassiny/golox/errors"
	"github.com/evomassiny/golox/utils"
	"github.com/sirupsen/logrus"
)

const framesMax = 4096

// callFrame is one live call's bookkeeping: the closure it is executing,
// its instruction pointer into that closure's chunk, and the base index
// into the VM's shared value stack where its locals (including the
// receiver/callee slot 0) begin.
type callFrame struct {
	closure   *VClosure
	ip        int
	slotsBase int
}

// VM is a single-threaded stack machine: one shared value stack, a stack of
// call frames over it, a globals table, and the chain of still-open
// upvalues pointing into the value stack.
type VM struct {
	frames    []callFrame
	stack     []Value
	globals   *Globals
	openUpval []*upvalueCell

	initString string
}

func NewVM() *VM {
	return &VM{globals: NewGlobals(), initString: "init"}
}

func (vm *VM) push(val Value) { vm.stack = append(vm.stack, val) }

func (vm *VM) pop() (last Value) {
	len_ := len(vm.stack)
	debug.Assertf(len_ > 0, "pop from an empty value stack")
	vm.stack, last = vm.stack[:len_-1], vm.stack[len_-1]
	return
}

func (vm *VM) peek(distance int) Value {
	debug.Assertf(distance < len(vm.stack), "peek(%d) past the bottom of a %d-deep stack", distance, len(vm.stack))
	return vm.stack[len(vm.stack)-1-distance]
}

// REPL reads one line at a time from stdin, compiling and running each as
// its own top-level program, echoing the resulting value the way `irb` or
// `python3` does for a bare expression.
func (vm *VM) REPL() error {
	rl, err := readline.New(">> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}
		val, err := vm.Interpret(line, true)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Printf("%s\n", val)
	}
}

// Interpret compiles src and runs it as a new top-level script. When isREPL
// is set and src fails to parse as a sequence of declarations, the parser
// retries it as a single bare expression, whose value Interpret then
// returns instead of discarding it.
func (vm *VM) Interpret(src string, isREPL bool) (Value, error) {
	parser := NewParser()
	fun, err := parser.Compile(src, isREPL)
	if err != nil {
		return VNil{}, err
	}

	closure := NewVClosure(fun)
	vm.push(closure)
	vm.frames = append(vm.frames, callFrame{closure: closure, slotsBase: len(vm.stack) - 1})
	return vm.run()
}

func (vm *VM) frame() *callFrame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) readByte() (res byte) {
	f := vm.frame()
	res = f.closure.fun.chunk.code[f.ip]
	f.ip++
	return
}

func (vm *VM) readConst() Value { return vm.frame().closure.fun.chunk.consts[vm.readByte()] }

func (vm *VM) readShort() uint16 {
	f := vm.frame()
	hi, lo := f.closure.fun.chunk.code[f.ip], f.closure.fun.chunk.code[f.ip+1]
	f.ip += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) runtimeErr(format string, a ...any) error {
	f := vm.frame()
	line := f.closure.fun.chunk.lines[f.ip-1]
	err := &e.RuntimeError{Line: line, Reason: fmt.Sprintf(format, a...)}
	// Unwind every frame, matching clox's resetStack() after a runtime panic.
	vm.frames = nil
	vm.stack = nil
	vm.openUpval = nil
	return err
}

// run executes bytecode starting from the topmost call frame until that
// frame (and every frame above the one Interpret pushed) returns, at which
// point the script's own return value - ordinarily left on the stack by
// OpReturn - is handed back to Interpret's caller instead of being dropped.
func (vm *VM) run() (Value, error) {
	baseFrame := len(vm.frames) - 1

	for {
		if debug.DEBUG {
			logrus.Debugln(vm.stackTrace())
			f := vm.frame()
			instDump, _ := f.closure.fun.chunk.DisassembleInst(f.ip)
			logrus.Debugln(instDump)
		}

		switch inst := OpCode(vm.readByte()); inst {
		case OpConst:
			vm.push(vm.readConst())
		case OpNil:
			vm.push(VNil{})
		case OpTrue:
			vm.push(VBool(true))
		case OpFalse:
			vm.push(VBool(false))
		case OpPop:
			vm.pop()

		case OpGetLocal:
			slot := vm.readByte()
			vm.push(vm.stack[vm.frame().slotsBase+int(slot)])
		case OpSetLocal:
			slot := vm.readByte()
			vm.stack[vm.frame().slotsBase+int(slot)] = vm.peek(0)

		case OpGetGlobal:
			name := string(vm.readConst().(VStr))
			val, ok := vm.globals.Get(name)
			if !ok {
				return VNil{}, vm.runtimeErr("undefined variable '%s'", name)
			}
			vm.push(val)
		case OpDefGlobal:
			name := string(vm.readConst().(VStr))
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case OpSetGlobal:
			name := string(vm.readConst().(VStr))
			if !vm.globals.Has(name) {
				return VNil{}, vm.runtimeErr("undefined variable '%s'", name)
			}
			vm.globals.Set(name, vm.peek(0))

		case OpGetUpvalue:
			slot := vm.readByte()
			vm.push(vm.frame().closure.upvalues[slot].get())
		case OpSetUpvalue:
			slot := vm.readByte()
			vm.frame().closure.upvalues[slot].set(vm.peek(0))

		case OpGetProperty:
			if err := vm.getProperty(); err != nil {
				return VNil{}, err
			}
		case OpSetProperty:
			if err := vm.setProperty(); err != nil {
				return VNil{}, err
			}
		case OpGetSuper:
			name := string(vm.readConst().(VStr))
			superclass := vm.pop().(*VClass)
			receiver := vm.pop()
			bound, ok := vm.bindMethod(superclass, name, receiver)
			if !ok {
				return VNil{}, vm.runtimeErr("undefined property '%s'", name)
			}
			vm.push(bound)

		case OpEqual:
			rhs := vm.pop()
			vm.push(VEq(vm.pop(), rhs))
		case OpGreater:
			if err := vm.binaryNumOp(VGreater, "compare"); err != nil {
				return VNil{}, err
			}
		case OpLess:
			if err := vm.binaryNumOp(VLess, "compare"); err != nil {
				return VNil{}, err
			}
		case OpNot:
			vm.push(!VTruthy(vm.pop()))
		case OpNeg:
			val, ok := VNeg(vm.peek(0))
			if !ok {
				return VNil{}, vm.runtimeErr("operand must be a number")
			}
			vm.pop()
			vm.push(val)

		case OpAdd:
			if err := vm.add(); err != nil {
				return VNil{}, err
			}
		case OpSub:
			if err := vm.binaryNumOp(VSub, "subtract"); err != nil {
				return VNil{}, err
			}
		case OpMul:
			if err := vm.binaryNumOp(VMul, "multiply"); err != nil {
				return VNil{}, err
			}
		case OpDiv:
			if err := vm.binaryNumOp(VDiv, "divide"); err != nil {
				return VNil{}, err
			}

		case OpPrint:
			fmt.Printf("%s\n", vm.pop())

		case OpJump:
			offset := vm.readShort()
			vm.frame().ip += int(offset)
		case OpJumpUnless:
			offset := vm.readShort()
			if !bool(VTruthy(vm.peek(0))) {
				vm.frame().ip += int(offset)
			}
		case OpLoop:
			offset := vm.readShort()
			vm.frame().ip -= int(offset)

		case OpCall:
			argCount := int(vm.readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return VNil{}, err
			}
		case OpInvoke:
			name := string(vm.readConst().(VStr))
			argCount := int(vm.readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return VNil{}, err
			}
		case OpSuperInvoke:
			name := string(vm.readConst().(VStr))
			argCount := int(vm.readByte())
			superclass := vm.pop().(*VClass)
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return VNil{}, err
			}

		case OpClosure:
			fun := vm.readConst().(*VFun)
			closure := NewVClosure(fun)
			for i := range closure.upvalues {
				isLocal, index := vm.readByte(), vm.readByte()
				if utils.IntToBool(isLocal) {
					closure.upvalues[i] = vm.captureUpvalue(vm.frame().slotsBase + int(index))
				} else {
					closure.upvalues[i] = vm.frame().closure.upvalues[index]
				}
			}
			vm.push(closure)
		case OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case OpReturn:
			result := vm.pop()
			finishedFrame := vm.frame()
			vm.closeUpvalues(finishedFrame.slotsBase)
			done := len(vm.frames) - 1 == baseFrame
			vm.stack = vm.stack[:finishedFrame.slotsBase]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if done {
				return result, nil
			}
			vm.push(result)

		case OpClass:
			name := string(vm.readConst().(VStr))
			vm.push(NewVClass(name))
		case OpInherit:
			superclass, ok := vm.peek(1).(*VClass)
			if !ok {
				return VNil{}, vm.runtimeErr("superclass must be a class")
			}
			subclass := vm.peek(0).(*VClass)
			for name, method := range superclass.methods {
				subclass.methods[name] = method
			}
			vm.pop() // The subclass.
		case OpMethod:
			name := string(vm.readConst().(VStr))
			vm.defineMethod(name)

		default:
			return VNil{}, vm.runtimeErr("unknown instruction '%d'", inst)
		}
	}
}

func (vm *VM) add() error {
	rhs, lhs := vm.peek(0), vm.peek(1)
	res, ok := VAdd(lhs, rhs)
	if !ok {
		return vm.runtimeErr("operands must be two numbers or two strings")
	}
	vm.pop()
	vm.pop()
	vm.push(res)
	return nil
}

func (vm *VM) binaryNumOp(op func(Value, Value) (Value, bool), verb string) error {
	rhs, lhs := vm.peek(0), vm.peek(1)
	res, ok := op(lhs, rhs)
	if !ok {
		return vm.runtimeErr("operands must be numbers to %s", verb)
	}
	vm.pop()
	vm.pop()
	vm.push(res)
	return nil
}

func (vm *VM) getProperty() error {
	instance, ok := vm.peek(0).(*VInstance)
	if !ok {
		return vm.runtimeErr("only instances have properties")
	}
	name := string(vm.readConst().(VStr))

	if field, ok := instance.fields[name]; ok {
		vm.pop()
		vm.push(field)
		return nil
	}
	bound, ok := vm.bindMethod(instance.class, name, instance)
	if !ok {
		return vm.runtimeErr("undefined property '%s'", name)
	}
	vm.pop()
	vm.push(bound)
	return nil
}

func (vm *VM) setProperty() error {
	instance, ok := vm.peek(1).(*VInstance)
	if !ok {
		return vm.runtimeErr("only instances have fields")
	}
	name := string(vm.readConst().(VStr))
	instance.fields[name] = vm.peek(0)

	val := vm.pop()
	vm.pop() // The instance.
	vm.push(val)
	return nil
}

func (vm *VM) bindMethod(class *VClass, name string, receiver Value) (*VBoundMethod, bool) {
	method, ok := class.methods[name]
	if !ok {
		return nil, false
	}
	return &VBoundMethod{receiver: receiver, method: method}, true
}

func (vm *VM) defineMethod(name string) {
	method := vm.pop().(*VClosure)
	class := vm.peek(0).(*VClass)
	class.methods[name] = method
}

func (vm *VM) callValue(callee Value, argCount int) error {
	switch callee := callee.(type) {
	case *VClosure:
		return vm.call(callee, argCount)
	case *VBoundMethod:
		vm.stack[len(vm.stack)-1-argCount] = callee.receiver
		return vm.call(callee.method, argCount)
	case *VClass:
		vm.stack[len(vm.stack)-1-argCount] = NewVInstance(callee)
		if init, ok := callee.methods[vm.initString]; ok {
			return vm.call(init, argCount)
		}
		if argCount != 0 {
			return vm.runtimeErr("expected 0 arguments but got %d", argCount)
		}
		return nil
	default:
		return vm.runtimeErr("can only call functions and classes")
	}
}

func (vm *VM) invoke(name string, argCount int) error {
	receiver, ok := vm.peek(argCount).(*VInstance)
	if !ok {
		return vm.runtimeErr("only instances have methods")
	}

	if field, ok := receiver.fields[name]; ok {
		vm.stack[len(vm.stack)-1-argCount] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(receiver.class, name, argCount)
}

func (vm *VM) invokeFromClass(class *VClass, name string, argCount int) error {
	method, ok := class.methods[name]
	if !ok {
		return vm.runtimeErr("undefined property '%s'", name)
	}
	return vm.call(method, argCount)
}

func (vm *VM) call(closure *VClosure, argCount int) error {
	if argCount != closure.Arity() {
		return vm.runtimeErr("expected %d arguments but got %d", closure.Arity(), argCount)
	}
	if len(vm.frames) >= framesMax {
		return vm.runtimeErr("stack overflow")
	}
	vm.frames = append(vm.frames, callFrame{
		closure:   closure,
		slotsBase: len(vm.stack) - 1 - argCount,
	})
	return nil
}

func (vm *VM) captureUpvalue(slot int) *upvalueCell {
	for _, uv := range vm.openUpval {
		if uv.isOpen && uv.slot == slot {
			return uv
		}
	}
	uv := newOpenUpvalue(vm, slot)
	vm.openUpval = append(vm.openUpval, uv)
	return uv
}

// closeUpvalues closes every still-open upvalue referencing a stack slot at
// or above last, copying each one's value out before the slots it refers to
// go out of scope or get reused by the next call frame.
func (vm *VM) closeUpvalues(last int) {
	kept := vm.openUpval[:0]
	for _, uv := range vm.openUpval {
		if uv.isOpen && uv.slot >= last {
			uv.close()
			continue
		}
		kept = append(kept, uv)
	}
	vm.openUpval = kept
}

func (vm *VM) stackTrace() string {
	res := "          "
	for _, slot := range vm.stack {
		res += fmt.Sprintf("[ %s ]", slot)
	}
	return res
}
