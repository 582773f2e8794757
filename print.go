package blkio

import (
	"io"

	"gopkg.in/yaml.v3"
)

type mixinYAML struct {
	Kind  string `yaml:"kind"`
	Name  string `yaml:"name"`
	Descr string `yaml:"descr,omitempty"`
}

type backendYAML struct {
	Attr   Attr        `yaml:"attr"`
	Mixins []mixinYAML `yaml:"mixins"`
}

type deviceYAML struct {
	Ident   Ident           `yaml:"ident"`
	Geo     Geometry        `yaml:"geo"`
	Backend backendYAML     `yaml:"be"`
	Metrics MetricsSnapshot `yaml:"metrics"`
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return WrapError("print.yaml", err)
	}
	return enc.Close()
}

func (b *Backend) view() backendYAML {
	out := backendYAML{Attr: b.Attr}
	for _, m := range b.Mixins {
		out.Mixins = append(out.Mixins, mixinYAML{Kind: m.Kind.String(), Name: m.Name, Descr: m.Descr})
	}
	return out
}

// Fprint writes the ident as YAML
func (i Ident) Fprint(w io.Writer) error {
	return printYAML(w, map[string]Ident{"ident": i})
}

// Fprint writes the geometry as YAML
func (g Geometry) Fprint(w io.Writer) error {
	return printYAML(w, map[string]Geometry{"geo": g})
}

// Fprint writes the backend attributes and bound mixins as YAML
func (b *Backend) Fprint(w io.Writer) error {
	return printYAML(w, map[string]backendYAML{"be": b.view()})
}

// Fprint writes identity, geometry, backend and metrics as YAML
func (d *Device) Fprint(w io.Writer) error {
	return printYAML(w, map[string]deviceYAML{"dev": {
		Ident:   d.ident,
		Geo:     d.geo,
		Backend: d.be.view(),
		Metrics: d.metrics.Snapshot(),
	}})
}

// FprintDef writes a backend definition with all of its candidate mixins
func FprintDef(w io.Writer, def Def) error {
	view := backendYAML{Attr: def.Attr}
	for _, m := range def.Mixins {
		view.Mixins = append(view.Mixins, mixinYAML{Kind: m.Kind.String(), Name: m.Name, Descr: m.Descr})
	}
	return printYAML(w, view)
}
