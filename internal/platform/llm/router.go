package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TaskEmbedding       = "embedding"
	TaskDocumentSummary = "document_summary"
	TaskQuizGeneration  = "quiz_generation"
	TaskRemediation     = "remediation"
)

type Route struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Routes maps task name to provider/model.
type Routes map[string]Route

type routesFile struct {
	Routes Routes `yaml:"routes"`
}

func DefaultRoutes() Routes {
	return Routes{
		TaskEmbedding:       {Provider: "openai", Model: "text-embedding-3-small"},
		TaskDocumentSummary: {Provider: "openai", Model: "gpt-4o-mini"},
		TaskQuizGeneration:  {Provider: "openai", Model: "gpt-4o-mini"},
		TaskRemediation:     {Provider: "openai", Model: "gpt-4o-mini"},
	}
}

// LoadRoutes overlays the YAML file at path onto the defaults. An empty path
// returns the defaults.
func LoadRoutes(path string) (Routes, error) {
	routes := DefaultRoutes()
	if strings.TrimSpace(path) == "" {
		return routes, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model routes %s: %w", path, err)
	}
	return ParseRoutes(raw, routes)
}

func ParseRoutes(raw []byte, base Routes) (Routes, error) {
	var f routesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse model routes: %w", err)
	}
	out := Routes{}
	for k, v := range base {
		out[k] = v
	}
	for task, r := range f.Routes {
		task = strings.TrimSpace(task)
		r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
		r.Model = strings.TrimSpace(r.Model)
		if task == "" {
			continue
		}
		if r.Provider == "" || r.Provider == "none" {
			delete(out, task)
			continue
		}
		out[task] = r
	}
	return out, nil
}

// Router is the resolved task table. It is built once at startup and shared
// read-only.
type Router struct {
	generators map[string]Generator
	embedder   Embedder
	routes     Routes
}

// NewRouter resolves every route against the given providers. Routes naming a
// provider that is not configured are dropped, so those tasks report
// ErrNoRoute at call time.
func NewRouter(routes Routes, providers ...Provider) (*Router, []string, error) {
	byName := map[string]Provider{}
	for _, p := range providers {
		if p != nil {
			byName[strings.ToLower(p.Name())] = p
		}
	}
	r := &Router{generators: map[string]Generator{}, routes: Routes{}}
	var skipped []string
	for task, route := range routes {
		p, ok := byName[route.Provider]
		if !ok {
			skipped = append(skipped, task)
			continue
		}
		if task == TaskEmbedding {
			e, ok := p.Embedder(route.Model)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s", ErrNoEmbeddingModel, route.Provider)
			}
			r.embedder = e
		} else {
			g := p.Generator(route.Model)
			if g == nil {
				skipped = append(skipped, task)
				continue
			}
			r.generators[task] = g
		}
		r.routes[task] = route
	}
	return r, skipped, nil
}

func (r *Router) Generator(task string) (Generator, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, task)
	}
	g, ok := r.generators[task]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, task)
	}
	return g, nil
}

func (r *Router) Embedder() (Embedder, error) {
	if r == nil || r.embedder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, TaskEmbedding)
	}
	return r.embedder, nil
}

func (r *Router) Route(task string) (Route, bool) {
	if r == nil {
		return Route{}, false
	}
	route, ok := r.routes[task]
	return route, ok
}
