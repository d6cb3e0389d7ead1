// Package render turns finished command results into caller-facing bytes.
// A result carries no format; the same result renders as console text, JSON,
// or a registered HTML template, and each rendering is memoized on the
// result so cache hits do not re-render.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	texttemplate "text/template"

	"github.com/maildeck/maildeck/pkg/command"
)

const (
	ModeText = "text"
	ModeJSON = "json"
	ModeHTML = "html"
)

// ErrNotFound reports a render mode or template nothing is registered for.
type ErrNotFound struct {
	Mode    string
	Command string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("render: no %s renderer for %s", e.Mode, e.Command)
}

// Renderer holds the per-command HTML templates and any extra template-backed
// formats (rss, xml, csv and friends). Text and JSON need no registration.
type Renderer struct {
	templates map[string]*template.Template
	formats   map[string]map[string]*texttemplate.Template
	fallback  *template.Template
}

// New returns a renderer with the default HTML wrapper and no per-command
// templates.
func New() *Renderer {
	return &Renderer{
		templates: map[string]*template.Template{},
		formats:   map[string]map[string]*texttemplate.Template{},
		fallback:  template.Must(template.New("fallback").Parse(fallbackHTML)),
	}
}

const fallbackHTML = `<div class="result {{.CacheID}}" data-command="{{.Command}}">
<p class="message">{{.Message}}</p>
<pre>{{.Body}}</pre>
</div>
`

// RegisterTemplate installs an HTML template for a command. The template
// receives the same view as the fallback wrapper.
func (r *Renderer) RegisterTemplate(commandName, text string) error {
	t, err := template.New(commandName).Parse(text)
	if err != nil {
		return fmt.Errorf("render: template for %s: %w", commandName, err)
	}
	r.templates[commandName] = t
	return nil
}

// RegisterFormat installs a text template serving an extra format for one
// command, or for every command when commandName is empty. The format name
// becomes a render mode.
func (r *Renderer) RegisterFormat(mode, commandName, text string) error {
	mode = strings.ToLower(mode)
	t, err := texttemplate.New(mode + "/" + commandName).Parse(text)
	if err != nil {
		return fmt.Errorf("render: %s template for %s: %w", mode, commandName, err)
	}
	if r.formats[mode] == nil {
		r.formats[mode] = map[string]*texttemplate.Template{}
	}
	r.formats[mode][commandName] = t
	return nil
}

// Render produces the result in the given mode, memoizing on the result.
// The mode may carry a template hint after "!", e.g. "html!minimal"; hints
// are folded into the memo key.
func (r *Renderer) Render(res *command.Result, mode string) ([]byte, error) {
	if mode == "" {
		mode = ModeText
	}
	key := sanitizeMode(mode)
	if b, ok := res.CachedRender(key); ok {
		return b, nil
	}

	base, _, _ := strings.Cut(key, "!")
	var (
		b   []byte
		err error
	)
	switch base {
	case ModeText:
		b, err = renderText(res)
	case ModeJSON:
		b, err = renderJSON(res)
	case ModeHTML:
		b, err = r.renderHTML(res)
	default:
		b, err = r.renderFormat(res, base)
	}
	if err != nil {
		return nil, err
	}
	res.StoreRender(key, b)
	return b, nil
}

// sanitizeMode strips anything that could smuggle markup through a render
// hint. Hints come from query strings.
func sanitizeMode(mode string) string {
	var sb strings.Builder
	for _, r := range mode {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '!', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func renderJSON(res *command.Result) ([]byte, error) {
	b, err := json.MarshalIndent(res.AsDict(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return b, nil
}

func renderText(res *command.Result) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(res.Message)
	sb.WriteByte('\n')

	switch res.Payload.Kind() {
	case command.PayloadText:
		sb.WriteString(res.Payload.Text())
		if !strings.HasSuffix(res.Payload.Text(), "\n") {
			sb.WriteByte('\n')
		}
	case command.PayloadData:
		writeData(&sb, res.Payload.Data(), 0)
	case command.PayloadBool:
		if !res.Payload.Bool() {
			sb.WriteString("failed\n")
		}
	}
	if len(res.ErrorInfo) > 0 {
		keys := make([]string, 0, len(res.ErrorInfo))
		for k := range res.ErrorInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, res.ErrorInfo[k])
		}
	}
	return []byte(sb.String()), nil
}

func writeData(sb *strings.Builder, v any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch x[k].(type) {
			case map[string]any, []any:
				fmt.Fprintf(sb, "%s%s:\n", indent, k)
				writeData(sb, x[k], depth+1)
			default:
				fmt.Fprintf(sb, "%s%s: %v\n", indent, k, x[k])
			}
		}
	case []any:
		for _, item := range x {
			switch item.(type) {
			case map[string]any, []any:
				writeData(sb, item, depth+1)
			default:
				fmt.Fprintf(sb, "%s- %v\n", indent, item)
			}
		}
	default:
		fmt.Fprintf(sb, "%s%v\n", indent, x)
	}
}

type resultView struct {
	Command string
	Message string
	CacheID string
	Body    string
	Result  map[string]any
}

// renderFormat serves registered extra formats. The per-command template
// wins over the format's catch-all.
func (r *Renderer) renderFormat(res *command.Result, mode string) ([]byte, error) {
	byCommand := r.formats[mode]
	t, ok := byCommand[res.Command]
	if !ok {
		if t, ok = byCommand[""]; !ok {
			return nil, &ErrNotFound{Mode: mode, Command: res.Command}
		}
	}
	body, err := renderText(res)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, resultView{
		Command: res.Command,
		Message: res.Message,
		CacheID: res.CacheID,
		Body:    string(body),
		Result:  res.AsDict(),
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", mode, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderHTML(res *command.Result) ([]byte, error) {
	t, ok := r.templates[res.Command]
	if !ok {
		t = r.fallback
	}
	body, err := renderText(res)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, resultView{
		Command: res.Command,
		Message: res.Message,
		CacheID: res.CacheID,
		Body:    string(body),
		Result:  res.AsDict(),
	})
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
