package cfr

// Info is the serialisable form of a group tree.
type Info struct {
	Kind     string  `json:"kind"`
	Role     string  `json:"role,omitempty"`
	Label    string  `json:"label"`
	Children []*Info `json:"children,omitempty"`
}

// Info converts the tree under g.
func (g *Group) Info() *Info {
	info := &Info{Kind: g.Kind.String(), Role: g.Role, Label: g.Label}
	for _, c := range g.Children {
		info.Children = append(info.Children, c.Info())
	}
	return info
}
