package script

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/keboola/go-ajax/pkg/document"
)

// Optional capabilities of the document.Sink, exposed to scripts if implemented.
type (
	innerHTMLReader interface {
		InnerHTML(node document.Node) (string, error)
	}
	siblingNavigator interface {
		NextElement(node document.Node) (document.Node, bool)
		PreviousElement(node document.Node) (document.Node, bool)
	}
)

func (g *Goja) lookup(id string) goja.Value {
	if g.sink == nil {
		return goja.Null()
	}
	node, found := g.sink.Resolve(id)
	if !found {
		return goja.Null()
	}
	return g.newElement(id, node)
}

// newElement creates a JS wrapper of the element.
func (g *Goja) newElement(id string, node document.Node) goja.Value {
	obj := g.vm.NewObject()
	set := func(name string, value any) {
		if err := obj.Set(name, value); err != nil {
			g.logger.Error("failed to define element property", zap.String("property", name), zap.Error(err))
		}
	}

	set("id", id)
	set("update", func(call goja.FunctionCall) goja.Value {
		content := contentArgument(call.Argument(0))
		if err := g.sink.SetContent(node, content); err != nil {
			panic(g.vm.NewGoError(err))
		}
		return obj
	})
	set("insert", func(call goja.FunctionCall) goja.Value {
		for _, ins := range g.insertions(call) {
			if err := g.sink.InsertContent(node, ins.position, ins.content); err != nil {
				panic(g.vm.NewGoError(err))
			}
		}
		return obj
	})
	if reader, ok := g.sink.(innerHTMLReader); ok {
		set("innerHTML", func(goja.FunctionCall) goja.Value {
			v, err := reader.InnerHTML(node)
			if err != nil {
				panic(g.vm.NewGoError(err))
			}
			return g.vm.ToValue(v)
		})
	}
	if nav, ok := g.sink.(siblingNavigator); ok {
		set("next", func(goja.FunctionCall) goja.Value {
			if sibling, found := nav.NextElement(node); found {
				return g.newElement("", sibling)
			}
			return goja.Null()
		})
		set("previous", func(goja.FunctionCall) goja.Value {
			if sibling, found := nav.PreviousElement(node); found {
				return g.newElement("", sibling)
			}
			return goja.Null()
		})
	}
	return obj
}

type insertion struct {
	position document.Position
	content  string
}

// insertions parses arguments of the insert method: (content[, position]) or ({position: content, ...}).
func (g *Goja) insertions(call goja.FunctionCall) []insertion {
	first := call.Argument(0)
	if obj, ok := first.(*goja.Object); ok && obj.ClassName() == "Object" {
		var out []insertion
		for _, key := range obj.Keys() {
			position, err := document.ParsePosition(key)
			if err != nil {
				panic(g.vm.NewTypeError(err.Error()))
			}
			out = append(out, insertion{position: position, content: contentArgument(obj.Get(key))})
		}
		return out
	}

	position := document.Bottom
	if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
		p, err := document.ParsePosition(v.String())
		if err != nil {
			panic(g.vm.NewTypeError(err.Error()))
		}
		position = p
	}
	return []insertion{{position: position, content: contentArgument(first)}}
}

func contentArgument(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
