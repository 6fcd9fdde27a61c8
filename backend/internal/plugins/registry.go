// Package plugins runs analysis and export extensions over person and family
// records. Plugins declare a fixed set of capabilities; the registry runs every
// plugin that declares the requested one.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/pkg/logger"
)

// CapabilityKind is the family of work a plugin can do
type CapabilityKind string

const (
	KindPersonInsights CapabilityKind = "person_insights"
	KindFamilyInsights CapabilityKind = "family_insights"
	KindExport         CapabilityKind = "export"
)

// Capability is a kind plus, for exports, the format label
type Capability struct {
	Kind  CapabilityKind `json:"kind"`
	Label string         `json:"label,omitempty"`
}

func PersonInsights() Capability { return Capability{Kind: KindPersonInsights} }
func FamilyInsights() Capability { return Capability{Kind: KindFamilyInsights} }
func Export(label string) Capability {
	return Capability{Kind: KindExport, Label: label}
}

// String renders "person_insights", "family_insights" or "export:<label>"
func (c Capability) String() string {
	if c.Kind == KindExport {
		return string(KindExport) + ":" + c.Label
	}
	return string(c.Kind)
}

// ParseCapability reads the String form
func ParseCapability(s string) (Capability, error) {
	switch {
	case s == string(KindPersonInsights):
		return PersonInsights(), nil
	case s == string(KindFamilyInsights):
		return FamilyInsights(), nil
	case strings.HasPrefix(s, string(KindExport)+":"):
		label := strings.TrimPrefix(s, string(KindExport)+":")
		if label == "" {
			return Capability{}, fmt.Errorf("export capability needs a label")
		}
		return Export(label), nil
	default:
		return Capability{}, fmt.Errorf("unknown capability %q", s)
	}
}

// Metadata describes a plugin
type Metadata struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Author       string       `json:"author,omitempty"`
	Description  string       `json:"description,omitempty"`
	Capabilities []Capability `json:"capabilities"`
}

// Supports reports whether the plugin declares c
func (m Metadata) Supports(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Invocation is what a plugin runs on: exactly one of Person or Family, plus
// free-form configuration
type Invocation struct {
	Person *genealogy.Person
	Family *genealogy.Family
	Config json.RawMessage
}

func ForPerson(p *genealogy.Person) Invocation { return Invocation{Person: p} }
func ForFamily(f *genealogy.Family) Invocation { return Invocation{Family: f} }

// WithConfig returns a copy of the invocation carrying config
func (i Invocation) WithConfig(config json.RawMessage) Invocation {
	i.Config = config
	return i
}

// Result is what a plugin returns
type Result struct {
	Result   interface{} `json:"result"`
	Warnings []string    `json:"warnings"`
}

// Response is a Result attributed to the plugin that produced it
type Response struct {
	Plugin     Metadata    `json:"plugin"`
	Capability Capability  `json:"capability"`
	Result     interface{} `json:"result"`
	Warnings   []string    `json:"warnings"`
}

// Plugin is implemented by every extension
type Plugin interface {
	Metadata() Metadata
	Run(ctx context.Context, capability Capability, inv Invocation) (Result, error)
}

// Registry holds plugins in registration order
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{logger: logger.Component("plugins")}
}

// NewDefaultRegistry returns a registry with the built-in plugins
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Completeness{})
	r.Register(FamilyStatus{})
	r.Register(GedcomExport{})
	return r
}

func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, p)
	r.logger.Debug("Plugin registered", zap.String("plugin", p.Metadata().Name))
}

// Available lists the metadata of every registered plugin
func (r *Registry) Available() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p.Metadata())
	}
	return out
}

// Run invokes every plugin supporting capability, in registration order. The
// first plugin error aborts the run.
func (r *Registry) Run(ctx context.Context, capability Capability, inv Invocation) ([]Response, error) {
	r.mu.RLock()
	plugins := append([]Plugin(nil), r.plugins...)
	r.mu.RUnlock()

	out := []Response{}
	for _, p := range plugins {
		meta := p.Metadata()
		if !meta.Supports(capability) {
			continue
		}
		res, err := p.Run(ctx, capability, inv)
		if err != nil {
			return nil, fmt.Errorf("plugin %s failed on %s: %w", meta.Name, capability, err)
		}
		warnings := res.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		out = append(out, Response{
			Plugin:     meta,
			Capability: capability,
			Result:     res.Result,
			Warnings:   warnings,
		})
	}
	return out, nil
}
