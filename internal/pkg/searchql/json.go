package searchql

import (
	"github.com/valyala/fastjson"
)

// AppendJSON appends the JSON rendering of nodes to dst.
//
//	{"type":"word","value":"apple"}
//	{"type":"phrase","value":"red apple","quote":"\""}
//	{"type":"operator","value":"or","left":{...},"right":{...}}
//	{"type":"group","children":[...]}
//
// Missing operands are rendered as null.
func AppendJSON(dst []byte, nodes []Node) []byte {
	var a fastjson.Arena
	return nodesValue(&a, nodes).MarshalTo(dst)
}

func nodesValue(a *fastjson.Arena, nodes []Node) *fastjson.Value {
	arr := a.NewArray()
	for i, n := range nodes {
		arr.SetArrayItem(i, nodeValue(a, n))
	}
	return arr
}

func nodeValue(a *fastjson.Arena, node Node) *fastjson.Value {
	o := a.NewObject()
	switch n := node.(type) {
	case nil:
		return a.NewNull()
	case Word:
		o.Set("type", a.NewString("word"))
		o.Set("value", a.NewString(n.Value))
	case Phrase:
		o.Set("type", a.NewString("phrase"))
		o.Set("value", a.NewString(n.Value))
		o.Set("quote", a.NewString(string(n.Quote)))
	case Operator:
		o.Set("type", a.NewString("operator"))
		o.Set("value", a.NewString(string(n.Kind)))
		o.Set("left", nodeValue(a, n.Left))
		o.Set("right", nodeValue(a, n.Right))
	case Group:
		o.Set("type", a.NewString("group"))
		o.Set("children", nodesValue(a, n.Children))
	}
	return o
}
