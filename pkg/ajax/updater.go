package ajax

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/keboola/go-ajax/pkg/document"
)

var scriptRegexp = regexp.MustCompile(`(?i)<script[^>]*>([\S\s]*?)</script\s*>`)

// Target of an Updater request. An empty id means the response of that outcome is not inserted.
type Target struct {
	Success string
	Failure string
}

// Container returns a target, which receives both successful and failed responses.
func Container(id string) Target {
	return Target{Success: id, Failure: id}
}

// NewUpdater creates and starts a request, which inserts the response body into the document.
//
// The target element is updated before the OnComplete callback is called.
// The Insertion option selects the insertion position, the content is replaced by default.
// Scripts are removed from the body, or evaluated after the insertion, if the EvalScripts option is set.
func (c Client) NewUpdater(target Target, rawURL string, opts Options) (*Request, error) {
	opts = c.defaults.Merge(opts)
	onComplete := opts.OnComplete
	opts.OnComplete = func(res *Response, headerJSON any) error {
		res.Request().updateContent(target, res)
		if onComplete != nil {
			return onComplete(res, headerJSON)
		}
		return nil
	}
	return c.start(rawURL, opts)
}

func (r *Request) updateContent(target Target, res *Response) {
	receiver := target.Failure
	if res.Success() {
		receiver = target.Success
	}
	if receiver == "" {
		return
	}

	sink := r.client.sink
	if sink == nil {
		r.dispatchException(fmt.Errorf(`cannot update "%s": document is not set`, receiver))
		return
	}
	node, found := sink.Resolve(receiver)
	if !found {
		r.logger.Debug("update target not found", zap.String("target", receiver))
		return
	}

	content, scripts := stripScripts(res.Text())
	var err error
	if r.options.Insertion != "" {
		var position document.Position
		if position, err = document.ParsePosition(string(r.options.Insertion)); err == nil {
			err = sink.InsertContent(node, position, content)
		}
	} else {
		err = sink.SetContent(node, content)
	}
	if err != nil {
		r.dispatchException(err)
		return
	}

	if !boolValue(r.options.EvalScripts, false) {
		return
	}
	if r.client.evaluator == nil {
		r.logger.Debug("script evaluation skipped, evaluator is not set")
		return
	}
	for _, src := range scripts {
		if err := r.client.evaluator.Evaluate(src); err != nil {
			r.dispatchException(err)
		}
	}
}

// stripScripts removes script elements from the content and returns their sources.
func stripScripts(content string) (string, []string) {
	var scripts []string
	for _, m := range scriptRegexp.FindAllStringSubmatch(content, -1) {
		if src := strings.TrimSpace(m[1]); src != "" {
			scripts = append(scripts, m[1])
		}
	}
	return scriptRegexp.ReplaceAllString(content, ""), scripts
}
