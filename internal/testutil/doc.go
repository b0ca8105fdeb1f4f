// Package testutil contains helper builders used across tests to reduce
// boilerplate when scripting model replies (tool calls, planning commands)
// and assembling configurations. They are not intended for production usage.
package testutil
