package debug

// DEBUG gates the bytecode/stack trace dumped through logrus while
// compiling and executing. It mirrors clox's DEBUG_TRACE_EXECUTION /
// DEBUG_PRINT_CODE compile-time switches, but since Go has no preprocessor
// this is a plain var: flip it (or wire a build tag) rather than `#define`.
var DEBUG = false
