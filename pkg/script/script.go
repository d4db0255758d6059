// Package script evaluates response scripts and unsanitized JSON.
//
// Goja is the default Evaluator, a JavaScript runtime bound to a document.Sink.
// Scripts can modify the document by the $(id) and document.getElementById(id) helpers:
//
//	$("content").update("<h2>Hello world!</h2>");
//	$("list").insert("<li>item</li>", "bottom");
//	$("list").insert({top: "<li>first</li>"});
package script

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/go-ajax/pkg/document"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// ErrTimeout is returned, if the evaluation is interrupted by the timeout.
var ErrTimeout = errors.New("script evaluation timed out")

// Evaluator executes scripts.
type Evaluator interface {
	// Evaluate executes the source as a script.
	Evaluate(source string) error
	// EvaluateJSON evaluates the source as an expression and returns its value
	// in the encoding/json form: map[string]any, []any, float64, string, bool or nil.
	EvaluateJSON(source string) (any, error)
}

type config struct {
	logger  *zap.Logger
	timeout time.Duration
}

type Option func(*config)

// WithLogger sets the logger of the runtime, console.* calls are logged to it.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTimeout sets the maximum duration of one evaluation, 0 means no limit.
func WithTimeout(v time.Duration) Option {
	return func(c *config) {
		c.timeout = v
	}
}

// Goja is an Evaluator backed by the goja JavaScript runtime. It is safe for concurrent use, evaluations are serialized.
type Goja struct {
	config
	lock sync.Mutex
	vm   *goja.Runtime
	sink document.Sink
}

// NewGoja creates a runtime bound to the sink. The sink may be nil, then the document helpers return null.
func NewGoja(sink document.Sink, opts ...Option) *Goja {
	cfg := config{logger: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.logger = cfg.logger.Named("script")

	g := &Goja{config: cfg, vm: goja.New(), sink: sink}
	g.initRuntime()
	return g
}

func (g *Goja) Evaluate(source string) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	_, err := g.run(source)
	return err
}

func (g *Goja) EvaluateJSON(source string) (any, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	value, err := g.run("(" + source + "\n)")
	if err != nil {
		return nil, err
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}

	// Normalize the value by a JSON round trip
	stringify, ok := goja.AssertFunction(g.vm.Get("JSON").ToObject(g.vm).Get("stringify"))
	if !ok {
		return nil, fmt.Errorf("JSON.stringify is not available")
	}
	encoded, err := stringify(goja.Undefined(), value)
	if err != nil {
		return nil, wrapError(err)
	}
	if goja.IsUndefined(encoded) {
		return nil, nil
	}
	var out any
	if err := json.UnmarshalFromString(encoded.String(), &out); err != nil {
		return nil, fmt.Errorf("cannot decode evaluated value: %w", err)
	}
	return out, nil
}

// Set defines a global variable of the runtime.
func (g *Goja) Set(name string, value any) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.vm.Set(name, value)
}

func (g *Goja) run(source string) (goja.Value, error) {
	if g.timeout > 0 {
		timer := time.AfterFunc(g.timeout, func() {
			g.vm.Interrupt(ErrTimeout)
		})
		defer func() {
			timer.Stop()
			g.vm.ClearInterrupt()
		}()
	}
	value, err := g.vm.RunString(source)
	if err != nil {
		return nil, wrapError(err)
	}
	return value, nil
}

func wrapError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if v, ok := interrupted.Value().(error); ok {
			return v
		}
	}
	return fmt.Errorf("script evaluation failed: %w", err)
}

func (g *Goja) initRuntime() {
	global := g.vm.GlobalObject()
	if err := global.Set("window", global); err != nil {
		g.logger.Error("failed to set 'window' global", zap.Error(err))
	}

	lookup := func(call goja.FunctionCall) goja.Value {
		return g.lookup(call.Argument(0).String())
	}
	if err := global.Set("$", lookup); err != nil {
		g.logger.Error("failed to set '$' global", zap.Error(err))
	}
	doc := g.vm.NewObject()
	if err := doc.Set("getElementById", lookup); err != nil {
		g.logger.Error("failed to set 'document.getElementById'", zap.Error(err))
	}
	if err := global.Set("document", doc); err != nil {
		g.logger.Error("failed to set 'document' global", zap.Error(err))
	}

	g.initConsole()
}

func (g *Goja) initConsole() {
	console := g.vm.NewObject()
	logFunc := func(level zapcore.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.String()
			}
			g.logger.Log(level, "[JS Console]", zap.String("message", strings.Join(args, " ")))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFunc(zap.InfoLevel))
	_ = console.Set("info", logFunc(zap.InfoLevel))
	_ = console.Set("warn", logFunc(zap.WarnLevel))
	_ = console.Set("error", logFunc(zap.ErrorLevel))
	_ = console.Set("debug", logFunc(zap.DebugLevel))
	if err := g.vm.GlobalObject().Set("console", console); err != nil {
		g.logger.Error("failed to set 'console' global", zap.Error(err))
	}
}
