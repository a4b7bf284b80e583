package gosrc

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-decomp/pkg/ir"
)

// jumpTarget is an enclosing statement break and continue can leave.
type jumpTarget struct {
	label string
	brk   string
	cont  string // "" for switch and select
}

// builder lowers one function body. cur is the block statements are
// appended to; nil after a terminator until the next block starts.
type builder struct {
	src     []byte
	fn      *ir.Function
	byName  map[string]*ir.Block
	cur     *ir.Block
	seq     int
	targets []jumpTarget
	labels  map[string]string
	// fall is the next case body while lowering a switch case.
	fall string
	// label is a pending statement label for the next loop or switch.
	label string
}

func newBuilder(src []byte, name string) *builder {
	b := &builder{
		src:    src,
		fn:     &ir.Function{Name: name},
		byName: make(map[string]*ir.Block),
		labels: make(map[string]string),
	}
	b.cur = b.newBlock("entry")
	return b
}

func (b *builder) newBlock(name string) *ir.Block {
	blk := &ir.Block{Name: name}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	b.byName[name] = blk
	return blk
}

func (b *builder) next() int {
	b.seq++
	return b.seq
}

func (b *builder) text(n *sitter.Node) string {
	return n.Content(b.src)
}

// header is the first line of a statement without its opening brace.
func (b *builder) header(n *sitter.Node) string {
	s := b.text(n)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "{"))
}

func (b *builder) emit(line string) {
	if b.cur == nil {
		// dead code after a jump
		b.cur = b.newBlock(fmt.Sprintf("dead.%d", b.next()))
	}
	b.cur.Lines = append(b.cur.Lines, line)
}

func (b *builder) terminate(t *ir.Terminator) {
	if b.cur == nil {
		b.cur = b.newBlock(fmt.Sprintf("dead.%d", b.next()))
	}
	b.cur.Term = t
	b.cur = nil
}

func (b *builder) jump(target string) {
	if b.cur != nil {
		b.terminate(ir.Br(target))
	}
}

// start makes blk current, falling through from the open block if any.
func (b *builder) start(blk *ir.Block) {
	b.jump(blk.Name)
	b.cur = blk
}

// labelBlock returns the block a goto label names, creating it on first use.
func (b *builder) labelBlock(label string) *ir.Block {
	if name, ok := b.labels[label]; ok {
		return b.byName[name]
	}
	name := "label." + label
	b.labels[label] = name
	return b.newBlock(name)
}

func (b *builder) finish() *ir.Function {
	if b.cur != nil {
		b.terminate(ir.Ret())
	}
	for _, blk := range b.fn.Blocks {
		if blk.Term == nil {
			// a goto to a label that was never defined
			blk.Term = ir.Unreachable()
		}
	}
	return b.fn
}

// statements returns the statements of a block or case clause. Case
// clauses list theirs after the ':' token.
func statements(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	collecting := n.Type() == "block" || n.Type() == "statement_list"
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		if !collecting {
			collecting = c.Type() == ":"
			continue
		}
		if !c.IsNamed() || c.Type() == "comment" {
			continue
		}
		if c.Type() == "statement_list" {
			out = append(out, statements(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (b *builder) lower(block *sitter.Node) {
	for _, s := range statements(block) {
		b.stmt(s)
	}
}

func (b *builder) stmt(n *sitter.Node) {
	switch n.Type() {
	case "block":
		b.lower(n)
	case "if_statement":
		b.ifStmt(n)
	case "for_statement":
		b.forStmt(n)
	case "expression_switch_statement", "type_switch_statement":
		b.switchStmt(n)
	case "select_statement":
		b.selectStmt(n)
	case "labeled_statement":
		b.labeled(n)
	case "return_statement":
		b.emitDead()
		b.terminate(&ir.Terminator{Kind: ir.TermRet, Text: b.text(n)})
	case "break_statement":
		if t, ok := b.target(n, false); ok {
			b.emitDead()
			b.jump(t)
			b.cur = nil
		}
	case "continue_statement":
		if t, ok := b.target(n, true); ok {
			b.emitDead()
			b.jump(t)
			b.cur = nil
		}
	case "goto_statement":
		if l := firstOfType(n, "label_name"); l != nil {
			b.emitDead()
			b.jump(b.labelBlock(b.text(l)).Name)
			b.cur = nil
		}
	case "fallthrough_statement":
		if b.fall != "" {
			b.emitDead()
			b.jump(b.fall)
			b.cur = nil
		}
	case "expression_statement":
		line := b.header(n)
		if strings.HasPrefix(line, "panic(") {
			b.emitDead()
			b.terminate(&ir.Terminator{Kind: ir.TermUnreachable, Text: line})
			return
		}
		b.emit(line)
	case "empty_statement":
	default:
		b.emit(b.header(n))
	}
}

// emitDead opens a block for a jump statement that follows another jump.
func (b *builder) emitDead() {
	if b.cur == nil {
		b.cur = b.newBlock(fmt.Sprintf("dead.%d", b.next()))
	}
}

// target resolves the destination of break or continue.
func (b *builder) target(n *sitter.Node, cont bool) (string, bool) {
	label := ""
	if l := firstOfType(n, "label_name"); l != nil {
		label = b.text(l)
	}
	for i := len(b.targets) - 1; i >= 0; i-- {
		t := b.targets[i]
		if label != "" && t.label != label {
			continue
		}
		if cont {
			if t.cont == "" {
				continue
			}
			return t.cont, true
		}
		return t.brk, true
	}
	return "", false
}

func (b *builder) push(brk, cont string) {
	b.targets = append(b.targets, jumpTarget{label: b.label, brk: brk, cont: cont})
	b.label = ""
}

func (b *builder) pop() {
	b.targets = b.targets[:len(b.targets)-1]
}

func (b *builder) labeled(n *sitter.Node) {
	l := n.ChildByFieldName("label")
	if l == nil {
		return
	}
	label := b.text(l)
	b.start(b.labelBlock(label))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "label_name" || c.Type() == "comment" {
			continue
		}
		switch c.Type() {
		case "for_statement", "expression_switch_statement", "type_switch_statement", "select_statement":
			b.label = label
		}
		b.stmt(c)
		b.label = ""
	}
}

func (b *builder) ifStmt(n *sitter.Node) {
	id := b.next()
	if init := n.ChildByFieldName("initializer"); init != nil {
		b.emit(b.header(init))
	}
	then := b.newBlock(fmt.Sprintf("if.then.%d", id))
	alt := n.ChildByFieldName("alternative")
	var els *ir.Block
	if alt != nil {
		els = b.newBlock(fmt.Sprintf("if.else.%d", id))
	}
	done := b.newBlock(fmt.Sprintf("if.done.%d", id))

	cond := "if"
	if c := n.ChildByFieldName("condition"); c != nil {
		cond = "if " + b.text(c)
	}
	falseTarget := done.Name
	if els != nil {
		falseTarget = els.Name
	}
	t := ir.CondBr(then.Name, falseTarget)
	t.Text = cond
	b.terminate(t)

	b.cur = then
	if c := n.ChildByFieldName("consequence"); c != nil {
		b.lower(c)
	}
	b.jump(done.Name)

	if els != nil {
		b.cur = els
		b.stmt(alt)
		b.jump(done.Name)
	}
	b.cur = done
}

func (b *builder) forStmt(n *sitter.Node) {
	id := b.next()
	body := n.ChildByFieldName("body")

	var clause, cond *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "block" || c.Type() == "comment" {
			continue
		}
		if c.Type() == "for_clause" || c.Type() == "range_clause" {
			clause = c
		} else {
			cond = c
		}
	}

	bodyBlk := b.newBlock(fmt.Sprintf("for.body.%d", id))
	var head, post *ir.Block
	condText := ""
	switch {
	case clause != nil && clause.Type() == "range_clause":
		condText = "range " + b.text(clause)
	case clause != nil:
		if init := clause.ChildByFieldName("initializer"); init != nil {
			b.emit(b.text(init))
		}
		if c := clause.ChildByFieldName("condition"); c != nil {
			condText = b.text(c)
		}
		if u := clause.ChildByFieldName("update"); u != nil {
			post = b.newBlock(fmt.Sprintf("for.post.%d", id))
			post.Lines = []string{b.text(u)}
		}
	case cond != nil:
		condText = b.text(cond)
	}
	if condText != "" {
		head = b.newBlock(fmt.Sprintf("for.head.%d", id))
	}
	done := b.newBlock(fmt.Sprintf("for.done.%d", id))

	// loop entry: the condition when there is one, else the body
	loop := bodyBlk
	if head != nil {
		loop = head
		b.start(head)
		t := ir.CondBr(bodyBlk.Name, done.Name)
		t.Text = "for " + condText
		b.terminate(t)
	} else {
		b.jump(bodyBlk.Name)
	}

	cont := loop.Name
	if post != nil {
		cont = post.Name
	}
	b.push(done.Name, cont)
	b.cur = bodyBlk
	if body != nil {
		b.lower(body)
	}
	b.pop()
	b.jump(cont)

	if post != nil {
		post.Term = ir.Br(loop.Name)
	}
	b.cur = done
}

// caseClause is one arm of a switch or select.
type caseClause struct {
	node   *sitter.Node
	values []string
	isDflt bool
	blk    *ir.Block
}

func (b *builder) switchStmt(n *sitter.Node) {
	id := b.next()
	if init := n.ChildByFieldName("initializer"); init != nil {
		b.emit(b.text(init))
	}

	var clauses []*caseClause
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "expression_case", "type_case", "default_case":
			cc := &caseClause{node: c, isDflt: c.Type() == "default_case"}
			if !cc.isDflt {
				cc.values = b.caseValues(c)
			}
			cc.blk = b.newBlock(fmt.Sprintf("switch.case.%d.%d", id, len(clauses)))
			clauses = append(clauses, cc)
		}
	}
	done := b.newBlock(fmt.Sprintf("switch.done.%d", id))

	t := &ir.Terminator{Kind: ir.TermSwitch, Default: done.Name, Text: b.header(n)}
	seen := make(map[string]bool)
	for _, cc := range clauses {
		if cc.isDflt {
			t.Default = cc.blk.Name
			continue
		}
		for _, v := range cc.values {
			if seen[v] {
				continue
			}
			seen[v] = true
			t.Cases = append(t.Cases, ir.Case{Value: v, Target: cc.blk.Name})
		}
	}
	b.terminate(t)

	b.push(done.Name, "")
	for i, cc := range clauses {
		b.fall = ""
		if i+1 < len(clauses) {
			b.fall = clauses[i+1].blk.Name
		}
		b.cur = cc.blk
		b.lower(cc.node)
		b.fall = ""
		b.jump(done.Name)
	}
	b.pop()
	b.cur = done
}

// caseValues returns the expressions or types of a case clause, one per
// comma-separated element.
func (b *builder) caseValues(c *sitter.Node) []string {
	if v := c.ChildByFieldName("value"); v != nil {
		if v.Type() != "expression_list" {
			return []string{b.text(v)}
		}
		var out []string
		for i := 0; i < int(v.NamedChildCount()); i++ {
			if e := v.NamedChild(i); e != nil {
				out = append(out, b.text(e))
			}
		}
		return out
	}
	// type_case: every named child before ':' is a type
	var out []string
	for i := 0; i < int(c.ChildCount()); i++ {
		ch := c.Child(i)
		if ch == nil {
			continue
		}
		if ch.Type() == ":" {
			break
		}
		if ch.IsNamed() && ch.Type() != "comment" {
			out = append(out, b.text(ch))
		}
	}
	return out
}

func (b *builder) selectStmt(n *sitter.Node) {
	id := b.next()

	var clauses []*caseClause
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "communication_case", "default_case":
			cc := &caseClause{node: c, isDflt: c.Type() == "default_case"}
			if comm := c.ChildByFieldName("communication"); comm != nil {
				cc.values = []string{b.text(comm)}
			}
			cc.blk = b.newBlock(fmt.Sprintf("select.case.%d.%d", id, len(clauses)))
			clauses = append(clauses, cc)
		}
	}
	done := b.newBlock(fmt.Sprintf("select.done.%d", id))

	if len(clauses) == 0 {
		// select {} blocks forever
		b.terminate(&ir.Terminator{Kind: ir.TermUnreachable, Text: "select {}"})
		b.cur = done
		return
	}

	var t *ir.Terminator
	var dflt *caseClause
	for _, cc := range clauses {
		if cc.isDflt {
			dflt = cc
		}
	}
	if dflt != nil {
		t = &ir.Terminator{Kind: ir.TermSwitch, Default: dflt.blk.Name}
		seen := make(map[string]bool)
		for i, cc := range clauses {
			if cc == dflt {
				continue
			}
			v := fmt.Sprintf("#%d", i)
			if len(cc.values) > 0 && !seen[cc.values[0]] {
				v = cc.values[0]
			}
			seen[v] = true
			t.Cases = append(t.Cases, ir.Case{Value: v, Target: cc.blk.Name})
		}
	} else {
		t = &ir.Terminator{Kind: ir.TermIndirectBr}
		for _, cc := range clauses {
			t.Targets = append(t.Targets, cc.blk.Name)
		}
	}
	t.Text = "select"
	b.terminate(t)

	b.push(done.Name, "")
	for _, cc := range clauses {
		b.cur = cc.blk
		if len(cc.values) > 0 {
			b.emit(cc.values[0])
		}
		b.lower(cc.node)
		b.jump(done.Name)
	}
	b.pop()
	b.cur = done
}
