package layout

// Description is the serializable form of a layout, used for manifests and
// the layout browser.
type Description struct {
	Name   string             `json:"name" yaml:"name"`
	Size   uintptr            `json:"size" yaml:"size"`
	Align  uintptr            `json:"align" yaml:"align"`
	Fields []FieldDescription `json:"fields" yaml:"fields"`
}

type FieldDescription struct {
	Name   string  `json:"name" yaml:"name"`
	Offset uintptr `json:"offset" yaml:"offset"`
	Size   uintptr `json:"size" yaml:"size"`
	Type   string  `json:"type" yaml:"type"`
	Count  int     `json:"count,omitempty" yaml:"count,omitempty"`
}

func (l *Layout) Describe() Description {
	d := Description{
		Name:   l.name,
		Size:   l.size,
		Align:  l.align,
		Fields: make([]FieldDescription, 0, len(l.fields)),
	}
	for _, f := range l.fields {
		fd := FieldDescription{
			Name:   f.Name,
			Offset: f.Offset,
			Size:   f.Size,
			Type:   f.Kind.String(),
		}
		switch f.Kind {
		case Struct:
			fd.Type = f.Elem.name
		case Array:
			fd.Count = f.Count
			if f.ElemKind == Struct {
				fd.Type = f.Elem.name + "[]"
			} else {
				fd.Type = f.ElemKind.String() + "[]"
			}
		case Padding:
			fd.Count = f.Count
		}
		d.Fields = append(d.Fields, fd)
	}
	return d
}

// Describe returns descriptions of every layout in r, sorted by name.
func (r *Registry) Describe() []Description {
	all := r.All()
	out := make([]Description, 0, len(all))
	for _, l := range all {
		out = append(out, l.Describe())
	}
	return out
}
