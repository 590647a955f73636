package sttpl

import (
	"errors"
	"strings"
	"testing"
)

var wrapValues = []int{3, 9, 20, 2, 1, 4, 6, 32, 5, 6, 77, 888, 2, 1, 6, 32, 5, 6, 77,
	4, 9, 20, 2, 1, 4, 63, 9, 20, 2, 1, 4, 6, 32, 5, 6, 77, 6, 32, 5, 6, 77,
	3, 9, 20, 2, 1, 4, 6, 32, 5, 6, 77, 888, 1, 6, 32, 5}

func render(t *testing.T, in *Instance, width int) string {
	t.Helper()
	s, err := in.Render(width)
	if err != nil {
		t.Fatalf("render %s: %v", in.Template().Name(), err)
	}
	return s
}

func TestLineWrap(t *testing.T) {
	chars := []string{"a", "b", "c", "d", "e"}
	digits := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}

	tests := []struct {
		name   string
		params []string
		src    string
		attrs  map[string]any
		width  int
		want   string
	}{
		{
			name:   "line wrap",
			params: []string{"values"},
			src:    `int[] a = { <values; wrap="\n", separator=","> };`,
			attrs:  map[string]any{"values": wrapValues},
			width:  40,
			want: "int[] a = { 3,9,20,2,1,4,6,32,5,6,77,888,\n" +
				"2,1,6,32,5,6,77,4,9,20,2,1,4,63,9,20,2,1,\n" +
				"4,6,32,5,6,77,6,32,5,6,77,3,9,20,2,1,4,6,\n" +
				"32,5,6,77,888,1,6,32,5 };",
		},
		{
			name:   "anchored",
			params: []string{"values"},
			src:    `int[] a = { <values; anchor, wrap, separator=","> };`,
			attrs:  map[string]any{"values": wrapValues},
			width:  40,
			want: "int[] a = { 3,9,20,2,1,4,6,32,5,6,77,888,\n" +
				"            2,1,6,32,5,6,77,4,9,20,2,1,4,\n" +
				"            63,9,20,2,1,4,6,32,5,6,77,6,\n" +
				"            32,5,6,77,3,9,20,2,1,4,6,32,\n" +
				"            5,6,77,888,1,6,32,5 };",
		},
		{
			name:   "fortran",
			params: []string{"args"},
			src:    `       FUNCTION line( <args; wrap="\n      c", separator=","> )`,
			attrs:  map[string]any{"args": []string{"a", "b", "c", "d", "e", "f"}},
			width:  30,
			want:   "       FUNCTION line( a,b,c,d,\n      ce,f )",
		},
		{
			name:   "diff anchor",
			params: []string{"values"},
			src:    `int[] a = { <{1,9,2,<values; wrap, separator=",">}; anchor> };`,
			attrs:  map[string]any{"values": wrapValues[:32]},
			width:  30,
			want: "int[] a = { 1,9,2,3,9,20,2,1,4,\n" +
				"            6,32,5,6,77,888,2,\n" +
				"            1,6,32,5,6,77,4,9,\n" +
				"            20,2,1,4,63,9,20,2,\n" +
				"            1,4,6 };",
		},
		{
			name:   "edge case",
			params: []string{"chars"},
			src:    `<chars; wrap="\n">`,
			attrs:  map[string]any{"chars": chars},
			width:  3,
			want:   "abc\nde",
		},
		{
			name:   "last char is newline",
			params: []string{"chars"},
			src:    `<chars; wrap="\n">`,
			attrs:  map[string]any{"chars": []string{"a", "b", "\n", "d", "e"}},
			width:  3,
			want:   "ab\nde",
		},
		{
			name:   "char after wrap is newline",
			params: []string{"chars"},
			src:    `<chars; wrap="\n">`,
			attrs:  map[string]any{"chars": []string{"a", "b", "c", "\n", "d", "e"}},
			width:  3,
			want:   "abc\n\nde",
		},
		{
			name:   "list",
			params: []string{"data"},
			src:    `!<data; wrap>!`,
			attrs:  map[string]any{"data": digits},
			width:  4,
			want:   "!123\n4567\n89!",
		},
		{
			name:   "anonymous template",
			params: []string{"data"},
			src:    `!<data:{v|[<v>]}; wrap>!`,
			attrs:  map[string]any{"data": digits},
			width:  9,
			want:   "![1][2][3]\n[4][5][6]\n[7][8][9]!",
		},
		{
			name:   "anonymous template anchored",
			params: []string{"data"},
			src:    `!<data:{v|[<v>]}; anchor, wrap>!`,
			attrs:  map[string]any{"data": digits},
			width:  9,
			want:   "![1][2][3]\n [4][5][6]\n [7][8][9]!",
		},
		{
			name:   "indent beyond line width",
			params: []string{"chars"},
			src:    `    <chars; wrap="\n">`,
			attrs:  map[string]any{"chars": chars},
			width:  2,
			want:   "    a\n    b\n    c\n    d\n    e",
		},
		{
			name:   "indented expression",
			params: []string{"chars"},
			src:    `    <chars; wrap="\n">`,
			attrs:  map[string]any{"chars": chars},
			width:  6,
			want:   "    ab\n    cd\n    e",
		},
		{
			name:   "literal does not wrap",
			params: []string{"args", "body"},
			src:    `@Test public voidfoo(<args; wrap="\n",separator=", ">) throws Ick { <body> }`,
			attrs:  map[string]any{"args": []string{"a", "b", "c"}, "body": "i=3;"},
			width:  len("@Test public voidfoo(a, b, c"),
			want:   "@Test public voidfoo(a, b, c) throws Ick { i=3; }",
		},
		{
			name:   "single value wrap",
			params: []string{"args", "body"},
			src:    `{ <body; anchor, wrap="\n"> }`,
			attrs:  map[string]any{"body": "i=3;"},
			width:  2,
			want:   "{ \n  i=3; }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGroup()
			tmpl, err := g.Define("t", tt.params, tt.src)
			if err != nil {
				t.Fatal(err)
			}
			in := tmpl.Instance()
			for k, v := range tt.attrs {
				in.Add(k, v)
			}
			if got := render(t, in, tt.width); got != tt.want {
				t.Errorf("expected\n%s\ngot\n%s", tt.want, got)
			}
		})
	}
}

func TestLineWrapNested(t *testing.T) {
	g := NewGroup()
	g.MustDefine("top", []string{"s"}, `  <s>.`)
	g.MustDefine("str", []string{"data"}, `!<data:{v|[<v>]}; wrap="!+\n!">!`)
	g.MustDefine("top2", []string{"d"}, `  <d>!`)
	g.MustDefine("duh", []string{"chars"}, `  <chars; wrap="\n">`)
	g.MustDefine("track", []string{"chars"}, `x: <chars; anchor, wrap="\n">`)
	g.MustDefine("arrays", []string{"arrays"}, `Arrays: <arrays>done`)
	g.MustDefine("array", []string{"values"}, `int[] a = { <values; anchor, wrap="\n", separator=","> };<\n>`)

	inst := func(name string) *Instance {
		in, err := g.Instance(name)
		if err != nil {
			t.Fatal(err)
		}
		return in
	}

	t.Run("complicated wrap", func(t *testing.T) {
		s := inst("str").Add("data", []int{1, 2, 3, 4, 5, 6, 7, 8, 9})
		top := inst("top").Add("s", s)
		want := "  ![1][2]!+\n" +
			"  ![3][4]!+\n" +
			"  ![5][6]!+\n" +
			"  ![7][8]!+\n" +
			"  ![9]!."
		if got := render(t, top, 9); got != want {
			t.Errorf("expected\n%s\ngot\n%s", want, got)
		}
	})

	t.Run("nested indented expression", func(t *testing.T) {
		duh := inst("duh").Add("chars", []string{"a", "b", "c", "d", "e"})
		top := inst("top2").Add("d", duh)
		if got, want := render(t, top, 6), "    ab\n    cd\n    e!"; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("nested indent and anchor", func(t *testing.T) {
		duh := inst("track").Add("chars", []string{"a", "b", "c", "d", "e"})
		top := inst("top2").Add("d", duh)
		if got, want := render(t, top, 7), "  x: ab\n     cd\n     e!"; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("wrap in nested expression", func(t *testing.T) {
		a := inst("array").Add("values", wrapValues)
		top := inst("arrays").Add("arrays", a).Add("arrays", a)
		want := "Arrays: int[] a = { 3,9,20,2,1,4,6,32,5,\n" +
			"                    6,77,888,2,1,6,32,5,\n" +
			"                    6,77,4,9,20,2,1,4,63,\n" +
			"                    9,20,2,1,4,6,32,5,6,\n" +
			"                    77,6,32,5,6,77,3,9,20,\n" +
			"                    2,1,4,6,32,5,6,77,888,\n" +
			"                    1,6,32,5 };\n" +
			"int[] a = { 3,9,20,2,1,4,6,32,5,6,77,888,\n" +
			"            2,1,6,32,5,6,77,4,9,20,2,1,4,\n" +
			"            63,9,20,2,1,4,6,32,5,6,77,6,\n" +
			"            32,5,6,77,3,9,20,2,1,4,6,32,\n" +
			"            5,6,77,888,1,6,32,5 };\n" +
			"done"
		if got := render(t, top, 40); got != want {
			t.Errorf("expected\n%s\ngot\n%s", want, got)
		}
	})

	t.Run("subtemplates anchor too", func(t *testing.T) {
		array := MustCompile(`{ <values; anchor, separator=", "> }`, WithParams("values"))
		x := MustCompile(`<\n>{ <stuff; anchor, separator=",\n"> }<\n>`).Instance()
		x.Add("stuff", "1").Add("stuff", "2").Add("stuff", "3")
		a := array.Instance().Add("values", []any{"a", x, "b"})
		want := "{ a, \n" +
			"  { 1,\n" +
			"    2,\n" +
			"    3 }\n" +
			"  , b }"
		if got := render(t, a, 40); got != want {
			t.Errorf("expected\n%s\ngot\n%s", want, got)
		}
	})
}

func TestLineWrapWithinWidth(t *testing.T) {
	tmpl := MustCompile(`    call(<args; anchor, wrap, separator=", ">);`)
	args := strings.Fields("alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu")
	for _, width := range []int{20, 30, 45} {
		out, err := tmpl.Instance().Add("args", args).Render(width)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(out, "\n")
		if len(lines) < 2 {
			t.Errorf("width %d: expected wrapping, got %q", width, out)
		}
		for _, line := range lines[1:] {
			if !strings.HasPrefix(line, strings.Repeat(" ", 9)) || line[9] == ' ' {
				t.Errorf("width %d: continuation %q does not start at the anchor", width, line)
			}
		}
	}
}

type person struct {
	Name string
	Age  int
	tags []string
}

func (p person) Greeting() string { return "hi " + p.Name }

func (p *person) IsAdult() bool { return p.Age >= 18 }

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data any
		want string
	}{
		{"text", "plain", nil, "plain"},
		{"attribute", "Hello, <name>!", map[string]any{"name": "World"}, "Hello, World!"},
		{"missing attribute", "[<missing>]", map[string]any{}, "[]"},
		{"struct field", "<name> is <age>", person{Name: "Ann", Age: 30}, "Ann is 30"},
		{"property chain", "<p.name>/<p.greeting>", map[string]any{"p": person{Name: "Bo"}}, "Bo/hi Bo"},
		{"pointer method", "<p.adult>", map[string]any{"p": &person{Age: 20}}, "true"},
		{"unexported field", "[<p.tags>]", map[string]any{"p": person{tags: []string{"x"}}}, "[]"},
		{"nil pointer getter", "hello <p.greeting>!", map[string]any{"p": (*person)(nil)}, "hello !"},
		{"nil pointer field", "[<p.name>|<p.adult>]", map[string]any{"p": (*person)(nil)}, "[|]"},
		{"separator", `<xs; separator=", ">`, map[string]any{"xs": []int{1, 2, 3}}, "1, 2, 3"},
		{"nil elements skipped", `<xs; separator=",">`, map[string]any{"xs": []any{"a", nil, "b"}}, "a,b"},
		{"null option", `<xs; null="-", separator=",">`, map[string]any{"xs": []any{"a", nil, "b"}}, "a,-,b"},
		{"null scalar", `[<x; null="none">]`, map[string]any{}, "[none]"},
		{"list literal", `<["x", xs, "y"]; separator="/">`, map[string]any{"xs": []string{"a", "b"}}, "x/a/b/y"},
		{"string literal", `<"lit">`, nil, "lit"},
		{"map keys sorted", `<m; separator=",">`, map[string]any{"m": map[string]int{"b": 2, "a": 1}}, "a,b"},
		{"dynamic property", `<m:{k|<k>=<m.(k)>}; separator=",">`, map[string]any{"m": map[string]int{"b": 2, "a": 1}}, "a=1,b=2"},
		{"implicit it and i", `<xs:{<i>.<it>}; separator=" ">`, map[string]any{"xs": []string{"a", "b"}}, "1.a 2.b"},
		{"zero based index", `<xs:{x|<i0><x>}>`, map[string]any{"xs": []string{"a", "b"}}, "0a1b"},
		{"round robin", `<xs:{x|<i>:<x>},{x|[<x>]}; separator=" ">`, map[string]any{"xs": []string{"a", "b", "c"}}, "1:a [b] 3:c"},
		{"chained application", `<xs:{x|<x><x>}:{y|(<y>)}>`, map[string]any{"xs": []string{"a", "b"}}, "(aa)(bb)"},
		{"escapes", `a<\t>b<\u00e9>`, nil, "a\tbé"},
		{"comment", `a<! ignored !>b`, nil, "ab"},
		{"line continuation", "a<\\\\>\n    b", nil, "ab"},
		{"if", `<if(ok)>yes<endif>`, map[string]any{"ok": true}, "yes"},
		{"if false", `<if(ok)>yes<endif>`, map[string]any{"ok": false}, ""},
		{"else", `<if(ok)>yes<else>no<endif>`, map[string]any{"ok": ""}, "no"},
		{"elseif", `<if(a)>1<elseif(b)>2<else>3<endif>`, map[string]any{"b": []int{1}}, "2"},
		{"not and", `<if(a && !b)>1<else>2<endif>`, map[string]any{"a": 1, "b": nil}, "1"},
		{"or parens", `<if((a || b) && c)>1<else>2<endif>`, map[string]any{"b": true, "c": "x"}, "1"},
		{"nested if", `<if(a)><if(b)>ab<else>a<endif><endif>`, map[string]any{"a": true}, "a"},
		{"conditional lines", "<if(a)>\nyes\n<else>\nno\n<endif>\nend", map[string]any{"a": true}, "yes\nend"},
		{"indented conditional lines", "x\n  <if(a)>\n  yes\n  <endif>\nend", map[string]any{"a": true}, "x\n  yes\nend"},
		{"empty expression line dropped", "a\n<x>\nb", map[string]any{}, "a\nb"},
		{"expression line kept", "a\n<x>\nb", map[string]any{"x": "X"}, "a\nX\nb"},
		{"indented multi-line value", "list:\n  <xs; separator=\"\\n\">\nend", map[string]any{"xs": []string{"a", "b"}}, "list:\n  a\n  b\nend"},
		{"indent before text", "  plain\n", nil, "  plain\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Compile(tt.src)
			if err != nil {
				t.Fatal(err)
			}
			got, err := tmpl.RenderString(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGroupCalls(t *testing.T) {
	g := NewGroup()
	g.MustDefine("page", nil, "<header()>\n<rows:row(); separator=\"\\n\">\n")
	g.MustDefine("header", nil, "== <title> ==")
	g.MustDefine("row", []string{"r", "width"}, "<i>. <r.name>")
	g.MustDefine("bold", []string{"x"}, "*<x>*")
	g.MustDefine("pair", []string{"k", "v"}, "<k>=<v>")
	g.MustDefine("call", nil, `<bold(name)> <bold("lit")> <pair("a", name)> <names:pair("n"); separator=",">`)

	page, err := g.Instance("page")
	if err != nil {
		t.Fatal(err)
	}
	page.Set("title", "Report").Set("rows", []map[string]any{{"name": "one"}, {"name": "two"}})
	if got, want := render(t, page, NoWrap), "== Report ==\n1. one\n2. two\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	call, _ := g.Lookup("call")
	got, err := call.RenderString(map[string]any{"name": "Zed", "names": []string{"x", "y"}})
	if err != nil {
		t.Fatal(err)
	}
	if want := "*Zed* *lit* a=Zed x=n,y=n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if names := g.Names(); strings.Join(names, ",") != "bold,call,header,page,pair,row" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestDynamicScope(t *testing.T) {
	g := NewGroup()
	g.MustDefine("outer", []string{"title", "body"}, "[<body>]")
	g.MustDefine("inner", nil, "<title>:<local>")

	inner, _ := g.Instance("inner")
	inner.Set("local", "L")
	outer, _ := g.Instance("outer")
	outer.Set("title", "T").Set("body", inner)
	if got := render(t, outer, NoWrap); got != "[T:L]" {
		t.Errorf("expected %q, got %q", "[T:L]", got)
	}

	// Closest definition wins.
	inner.Set("title", "mine")
	if got := render(t, outer, NoWrap); got != "[mine:L]" {
		t.Errorf("expected %q, got %q", "[mine:L]", got)
	}
}

func TestInstanceAttributes(t *testing.T) {
	tmpl := MustCompile(`<x; separator=",">`)
	in := tmpl.Instance().Add("x", "a").Add("x", "b").Add("x", []string{"c", "d"})
	if got := in.String(); got != "a,b,c,d" {
		t.Errorf("expected %q, got %q", "a,b,c,d", got)
	}
	in.Set("x", "only")
	if got := in.Attr("x"); got != "only" {
		t.Errorf("expected Set to replace, got %v", got)
	}
	in.Remove("x")
	if got := in.String(); got != "" {
		t.Errorf("expected empty render after Remove, got %q", got)
	}
}

func TestRenderOptions(t *testing.T) {
	tmpl := MustCompile(`<xs; wrap, separator=" ">`, WithLineWidth(5), WithNewline("\r\n"))
	data := map[string]any{"xs": []string{"aa", "bb", "cc"}}
	got, err := tmpl.RenderString(data)
	if err != nil {
		t.Fatal(err)
	}
	// The separator is written before the wrap is decided.
	if got != "aa bb \r\ncc" {
		t.Errorf("expected %q, got %q", "aa bb \r\ncc", got)
	}

	var sb strings.Builder
	if err := tmpl.RenderWidth(&sb, data, NoWrap); err != nil {
		t.Fatal(err)
	}
	if sb.String() != "aa bb cc" {
		t.Errorf("expected no wrapping, got %q", sb.String())
	}

	custom := MustCompile(`$a$<b>`, WithDelims('$', '$'))
	if got, _ := custom.RenderString(map[string]any{"a": 1}); got != "1<b>" {
		t.Errorf("expected %q, got %q", "1<b>", got)
	}
	if start, stop := custom.Delims(); start != '$' || stop != '$' {
		t.Errorf("unexpected delimiters %q %q", start, stop)
	}
}

func TestWriteIntoWriter(t *testing.T) {
	var sb strings.Builder
	w := NewAutoIndentWriter(&sb, WithWriterLineWidth(4))
	w.Write("> ")
	w.PushIndentation("  ")
	in := MustCompile("<xs; wrap>").Instance().Add("xs", []string{"a", "b", "c"})
	if err := in.Write(w); err != nil {
		t.Fatal(err)
	}
	w.PopIndentation()
	if got := sb.String(); got != "> ab\n  c" {
		t.Errorf("expected %q, got %q", "> ab\n  c", got)
	}
}

func TestTemplateTokens(t *testing.T) {
	tmpl := MustCompile("a<b>", WithName("tok"))
	tokens, err := tmpl.Tokens()
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 4 || tokens[2].Text() != "b" {
		t.Errorf("unexpected tokens %v", tokens)
	}
	if tmpl.Name() != "tok" || tmpl.Source() != "a<b>" {
		t.Errorf("unexpected name %q or source %q", tmpl.Name(), tmpl.Source())
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
	}{
		{"scan error", "<a", ErrUnterminatedExpr},
		{"unknown option", "<a; bogus>", ErrSyntax},
		{"separator without value", "<a; separator>", ErrSyntax},
		{"missing endif", "<if(a)>x", ErrSyntax},
		{"stray endif", "x<endif>", ErrSyntax},
		{"else after else", "<if(a)>1<else>2<else>3<endif>", ErrSyntax},
		{"missing paren", "<if a>x<endif>", ErrSyntax},
		{"super", "<super.x()>", ErrSyntax},
		{"region", "<@r>x<@end>", ErrSyntax},
		{"unterminated subtemplate", "<x:{y|abc", ErrSyntax},
		{"empty expression", "<>", ErrSyntax},
		{"bad application", "<x:y>", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}

	_, err := Compile("ab\n  <a; nope>", WithName("bad"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Line != 2 || pe.Column != 6 {
		t.Errorf("expected error at 2:6, got %d:%d", pe.Line, pe.Column)
	}
	if !strings.HasPrefix(err.Error(), "template bad: 2:6:") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRenderErrors(t *testing.T) {
	tmpl := MustCompile("<nothere()>")
	if _, err := tmpl.RenderString(nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}

	g := NewGroup()
	g.MustDefine("loop", nil, "<loop()>")
	loop, _ := g.Lookup("loop")
	if _, err := loop.RenderString(nil); !errors.Is(err, ErrMaxDepth) {
		t.Errorf("expected ErrMaxDepth, got %v", err)
	}

	g.MustDefine("one", []string{"a"}, "<a>")
	g.MustDefine("two", nil, `<one("x", "y")>`)
	two, _ := g.Lookup("two")
	if _, err := two.RenderString(nil); err == nil {
		t.Error("expected an argument count error")
	}

	if _, err := g.Instance("missing"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestConcurrentRender(t *testing.T) {
	tmpl := MustCompile(`<xs:{x|[<x>]}; anchor, wrap, separator=",">`)
	data := map[string]any{"xs": []int{1, 2, 3, 4, 5, 6}}
	want, err := tmpl.Instance().Add("xs", data["xs"]).Render(8)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan string, 16)
	for i := 0; i < 16; i++ {
		go func() {
			s, err := tmpl.Instance().Add("xs", data["xs"]).Render(8)
			if err != nil {
				s = err.Error()
			}
			done <- s
		}()
	}
	for i := 0; i < 16; i++ {
		if got := <-done; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
