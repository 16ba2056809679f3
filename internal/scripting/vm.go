// Package scripting runs user-defined alert rules against analysis reports in
// a sandboxed JavaScript runtime.
//
// A rule script defines alert(report) and returns a string, an array of
// strings, or a falsy value when nothing is worth flagging:
//
//	alert = function(r) {
//	    if (r.bust > 40 && r.ev.u >= 6) return "bank it: " + r.ev.u + " steps at risk"
//	}
package scripting

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/cant-stop-odds/internal/report"
)

var ErrNoAlertFunc = errors.New("alert() function is not defined")

// LogEntry represents a single log message from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM wraps a goja runtime with sandbox restrictions and global function injection.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int
}

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 1 * time.Second
)

// NewVM creates a sandboxed goja runtime with global functions injected.
func NewVM() *VM {
	vm := &VM{
		runtime: goja.New(),
		maxLogs: 500,
	}
	vm.injectGlobalFunctions()
	return vm
}

// LoadFile creates a VM and executes the script at path.
func LoadFile(path string) (*VM, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert script: %w", err)
	}
	vm := NewVM()
	if err := vm.Execute(string(src)); err != nil {
		return nil, err
	}
	if !vm.HasAlertFunc() {
		return nil, fmt.Errorf("%s: %w", path, ErrNoAlertFunc)
	}
	return vm, nil
}

// injectGlobalFunctions registers log and console.log, and blocks dangerous globals.
func (vm *VM) injectGlobalFunctions() {
	// log(...args) appends to the log buffer
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		vm.logsMu.Lock()
		if len(vm.logs) >= vm.maxLogs {
			vm.logs = vm.logs[1:]
		}
		vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: msg})
		vm.logsMu.Unlock()

		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

// Execute runs user script source code. It is called once to register alert().
func (vm *VM) Execute(source string) error {
	return vm.runWithTimeout(scriptInitTimeout, func() error {
		_, err := vm.runtime.RunString(source)
		if err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasAlertFunc returns true if the user script defined an alert() function.
func (vm *VM) HasAlertFunc() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	fn := vm.runtime.Get("alert")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return false
	}
	_, ok := goja.AssertFunction(fn)
	return ok
}

// Alert calls the user-defined alert() with the report and returns the
// messages it produced.
func (vm *VM) Alert(r report.Report) ([]string, error) {
	var out []string
	err := vm.runWithTimeout(scriptCallTimeout, func() error {
		fn := vm.runtime.Get("alert")
		if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
			return ErrNoAlertFunc
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("alert is not a function")
		}

		result, err := callable(goja.Undefined(), vm.runtime.ToValue(reportObject(r)))
		if err != nil {
			return fmt.Errorf("alert() error: %w", err)
		}
		out = messages(result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// messages flattens the value returned by alert().
func messages(v goja.Value) []string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) || !v.ToBoolean() {
		return nil
	}
	if items, ok := v.Export().([]interface{}); ok {
		var out []string
		for _, item := range items {
			if item == nil {
				continue
			}
			if s := fmt.Sprint(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{v.String()}
}

// GetLogs returns a copy of the current log buffer.
func (vm *VM) GetLogs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

// ClearLogs clears the log buffer.
func (vm *VM) ClearLogs() {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	vm.logs = vm.logs[:0]
}

// runWithTimeout runs fn on the runtime while holding vm.mu. A pending
// interrupt is cleared before the lock is released, even when the caller has
// already given up waiting.
func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	var (
		stateMu     sync.Mutex
		finished    bool
		interrupted bool
	)
	done := make(chan error, 1)
	go func() {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		err := fn()

		stateMu.Lock()
		finished = true
		if interrupted {
			vm.runtime.ClearInterrupt()
		}
		stateMu.Unlock()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		stateMu.Lock()
		if !finished {
			// Interrupt a runaway script execution.
			interrupted = true
			vm.runtime.Interrupt("script execution timeout")
		}
		stateMu.Unlock()
		if !interrupted {
			return <-done
		}

		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("script timed out: %w", err)
			}
			return fmt.Errorf("script timed out")
		case <-time.After(200 * time.Millisecond):
			return fmt.Errorf("script timed out")
		}
	}
}
