package tools

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Catalog is the registry of tools a run may invoke. Registering a name that
// already exists replaces the previous definition.
type Catalog struct {
	mu    sync.RWMutex
	tools map[Name]Definition
}

func NewCatalog() *Catalog {
	return &Catalog{tools: map[Name]Definition{}}
}

// Register adds def, replacing any tool of the same name.
func (c *Catalog) Register(def Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[def.Name] = def
}

func (c *Catalog) RegisterAll(defs []Definition) {
	for _, d := range defs {
		c.Register(d)
	}
}

func (c *Catalog) Get(name Name) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[name]
	return d, ok
}

// Names returns the registered tool names sorted alphabetically.
func (c *Catalog) Names() []Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Name, 0, len(c.tools))
	for n := range c.tools {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateInput returns human-readable problems with calling name on raw.
// An empty result means the call is well formed.
func (c *Catalog) ValidateInput(name Name, raw map[string]any) (msgs []string) {
	defer func() {
		if r := recover(); r != nil {
			msgs = []string{fmt.Sprintf("%s: invalid input: %v", name, r)}
		}
	}()
	def, ok := c.Get(name)
	if !ok {
		return []string{fmt.Sprintf("unknown tool %q", name)}
	}
	_, msgs = checkInput(def, raw)
	return msgs
}

// DecodeInput converts raw arguments into the typed input of name.
func (c *Catalog) DecodeInput(name Name, raw map[string]any) (Input, error) {
	def, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	in, msgs := checkInput(def, raw)
	if len(msgs) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return in, nil
}

// DescriptionsForPrompt renders one line per tool: name, description and
// accepted fields.
func (c *Catalog) DescriptionsForPrompt() string {
	var b strings.Builder
	for _, n := range c.Names() {
		def, _ := c.Get(n)
		fmt.Fprintf(&b, "- %s: %s", def.Name, def.Description)
		if fields := describeFields(def.NewInput()); fields != "" {
			fmt.Fprintf(&b, " Input: {%s}", fields)
		}
		if def.Metadata.RequiresConfirmation {
			b.WriteString(" Requires user confirmation.")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func describeFields(in Input) string {
	if in == nil {
		return ""
	}
	t := reflect.TypeOf(in)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var parts []string
	collectFields(t, &parts)
	return strings.Join(parts, ", ")
}

func collectFields(t reflect.Type, parts *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, parts)
			continue
		}
		name := jsonFieldName(f)
		if name == "" {
			continue
		}
		v := f.Tag.Get("validate")
		if v == "required" || strings.HasPrefix(v, "required,") {
			name += "*"
		}
		if oneof := tagParam(v, "oneof"); oneof != "" {
			name += " (" + strings.ReplaceAll(oneof, " ", "|") + ")"
		}
		*parts = append(*parts, name)
	}
}

func tagParam(tag, key string) string {
	for _, part := range strings.Split(tag, ",") {
		if v, ok := strings.CutPrefix(part, key+"="); ok {
			return v
		}
	}
	return ""
}
