// Package gosrc lowers Go source files to block-level functions without
// type-checking, using the tree-sitter Go grammar. It works on code that does
// not build and needs no module context.
package gosrc

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/l3aro/go-decomp/pkg/ir"
)

// Loader parses one .go file.
type Loader struct{}

// Load parses the file at path and lowers every function and method body.
func (Loader) Load(ctx context.Context, path string) (*ir.Module, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	m, err := Parse(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Name = path
	m.Source = path
	return m, nil
}

// Parse lowers Go source held in memory.
func Parse(ctx context.Context, content []byte) (*ir.Module, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	m := &ir.Module{}
	if pkg := firstOfType(root, "package_clause"); pkg != nil {
		if id := firstOfType(pkg, "package_identifier"); id != nil {
			m.Name = id.Content(content)
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl == nil {
			continue
		}
		switch decl.Type() {
		case "function_declaration", "method_declaration":
		default:
			continue
		}
		body := decl.ChildByFieldName("body")
		if body == nil {
			continue
		}
		b := newBuilder(content, funcName(decl, content))
		b.lower(body)
		m.Functions = append(m.Functions, b.finish())
	}
	return m, nil
}

// funcName is "Name" for functions and "Recv.Name" for methods.
func funcName(decl *sitter.Node, src []byte) string {
	name := ""
	if n := decl.ChildByFieldName("name"); n != nil {
		name = n.Content(src)
	}
	if decl.Type() != "method_declaration" {
		return name
	}
	recv := decl.ChildByFieldName("receiver")
	if recv == nil {
		return name
	}
	param := firstOfType(recv, "parameter_declaration")
	if param == nil {
		return name
	}
	typ := param.ChildByFieldName("type")
	if typ == nil {
		return name
	}
	t := strings.TrimPrefix(typ.Content(src), "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t + "." + name
}

func firstOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() == typ {
			return c
		}
	}
	return nil
}
