package compiler

import (
	"github.com/dave/jennifer/jen"

	"github.com/chazu/bst2go/pkg/ir"
)

// Helpers the generated code may call.
const (
	helperBoolToInt  = "boolToInt"
	helperCallType   = "callType"
	helperChrToInt   = "chrToInt"
	helperTextPrefix = "textPrefix"
)

// default.type handles entries no function is named after.
const defaultTypeFunc = "default.type"

var helperDefs = map[string]func(c *Compiler) jen.Code{
	helperBoolToInt:  genBoolToInt,
	helperCallType:   genCallType,
	helperChrToInt:   genChrToInt,
	helperTextPrefix: genTextPrefix,
	ir.HelperChoose:  genChoose,
}

func genBoolToInt(*Compiler) jen.Code {
	return jen.Func().Id(helperBoolToInt).Params(jen.Id("b").Bool()).Int().Block(
		jen.If(jen.Id("b")).Block(jen.Return(jen.Lit(1))),
		jen.Return(jen.Lit(0)),
	)
}

func genChrToInt(*Compiler) jen.Code {
	return jen.Func().Id(helperChrToInt).Params(jen.Id("s").String()).Int().Block(
		jen.List(jen.Id("r"), jen.Id("_")).Op(":=").Qual("unicode/utf8", "DecodeRuneInString").Call(jen.Id("s")),
		jen.Return(jen.Int().Parens(jen.Id("r"))),
	)
}

// genTextPrefix counts characters outside braces. A brace group starting
// with a backslash counts as one character. Unclosed braces are closed.
func genTextPrefix(*Compiler) jen.Code {
	s, i, n, depth := jen.Id("s"), jen.Id("i"), jen.Id("n"), jen.Id("depth")

	more := func(cond jen.Code) *jen.Statement {
		return i.Clone().Op("<").Len(s.Clone()).Op("&&").Add(cond)
	}

	return jen.Func().Id(helperTextPrefix).Params(jen.Id("s").String(), jen.Id("n").Int()).String().Block(
		jen.List(i.Clone(), depth.Clone()).Op(":=").List(jen.Lit(0), jen.Lit(0)),
		jen.For(more(n.Clone().Op(">").Lit(0))).Block(
			jen.Id("c").Op(":=").Add(s.Clone()).Index(i.Clone()),
			i.Clone().Op("++"),
			jen.Switch().Block(
				jen.Case(jen.Id("c").Op("==").LitRune('{')).Block(
					depth.Clone().Op("++"),
					jen.If(depth.Clone().Op("==").Lit(1).Op("&&").Add(more(s.Clone().Index(i.Clone()).Op("==").LitRune('\\')))).Block(
						jen.For(more(depth.Clone().Op(">").Lit(0))).Block(
							jen.Switch(s.Clone().Index(i.Clone())).Block(
								jen.Case(jen.LitRune('{')).Block(depth.Clone().Op("++")),
								jen.Case(jen.LitRune('}')).Block(depth.Clone().Op("--")),
							),
							i.Clone().Op("++"),
						),
						n.Clone().Op("--"),
					),
				),
				jen.Case(jen.Id("c").Op("==").LitRune('}')).Block(
					jen.If(depth.Clone().Op(">").Lit(0)).Block(depth.Clone().Op("--")),
				),
				jen.Default().Block(n.Clone().Op("--")),
			),
		),
		jen.Return(s.Clone().Index(jen.Op(":").Add(i.Clone())).Op("+").Qual("strings", "Repeat").Call(jen.Lit("}"), depth.Clone())),
	)
}

func genChoose(*Compiler) jen.Code {
	return jen.Func().Id(ir.HelperChoose).Types(jen.Id("T").Id("any")).Params(
		jen.Id("c").Bool(),
		jen.List(jen.Id("a"), jen.Id("b")).Id("T"),
	).Id("T").Block(
		jen.If(jen.Id("c")).Block(jen.Return(jen.Id("a"))),
		jen.Return(jen.Id("b")),
	)
}

// genCallType dispatches on the entry type to the function of that name.
func genCallType(c *Compiler) jen.Code {
	entry := jen.Id(entryName)

	var cases []jen.Code
	for _, fn := range c.dispatch {
		if fn == defaultTypeFunc {
			continue
		}

		cases = append(cases, jen.Case(jen.Lit(fn)).Block(
			jen.Id(recvName).Dot(c.methods[fn]).Call(entry.Clone()),
		))
	}

	fallback := jen.Id(recvName).Dot("rt").Dot("Warning").Call(
		jen.Lit("unknown entry type ").Op("+").Add(entry.Clone()).Dot("Type").Call(),
	)
	if m, ok := c.methods[defaultTypeFunc]; ok {
		fallback = jen.Id(recvName).Dot(m).Call(entry.Clone())
	}

	cases = append(cases, jen.Default().Block(fallback))

	return jen.Func().Params(jen.Id(recvName).Op("*").Id(c.opts.TypeName)).Id(helperCallType).Params(
		entry.Clone().Qual(c.opts.RuntimePath, "Entry"),
	).Block(
		jen.Switch(entry.Clone().Dot("Type").Call()).Block(cases...),
	)
}
