package oscquery

import (
	"encoding/json"
	"testing"

	"github.com/ossia-go/ossia/internal/tree"
	"github.com/ossia-go/ossia/pkg/value"
)

func TestEncodeDecodeTreeRoundTrip(t *testing.T) {
	device := tree.NewDevice("dev")
	a := device.CreateChild("a")
	aParam := a.CreateParameter(0)
	aParam.SetAccessMode(tree.Bi)
	aParam.PushValue(value.NewFloat(1.5))

	device.CreateChild("b")

	doc := encodeNode(device.Root())
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded NodeDoc
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Contents) != 2 {
		t.Fatalf("got %d children, want 2", len(decoded.Contents))
	}
	if decoded.Contents[0].Key != "a" || decoded.Contents[1].Key != "b" {
		t.Fatalf("insertion order not preserved: %v", decoded.Contents)
	}
	if decoded.Contents[0].Node.Type != "f" {
		t.Fatalf("type = %q, want f", decoded.Contents[0].Node.Type)
	}
	if len(decoded.Contents[0].Node.Value) != 1 {
		t.Fatalf("value = %v, want one element", decoded.Contents[0].Node.Value)
	}
}

func TestDecodeNodeBuildsTree(t *testing.T) {
	doc := &NodeDoc{
		FullPath: "/",
		Contents: OrderedContents{
			{Key: "layer", Node: &NodeDoc{
				FullPath: "/layer",
				Type:     "f",
				Value:    []interface{}{float64(2)},
				Access:   AccessBi,
			}},
		},
	}

	device := tree.NewDevice("dev")
	for _, entry := range doc.Contents {
		decodeNode(device.Root(), entry.Node)
	}

	n := tree.FindNode(device.Root(), "/layer")
	if n == nil {
		t.Fatal("expected /layer to exist")
	}
	p := n.Parameter()
	if p == nil {
		t.Fatal("expected /layer to carry a parameter")
	}
	f, ok := p.Value().AsFloat()
	if !ok || f != 2 {
		t.Fatalf("got %v, want 2", p.Value())
	}
	if p.AccessMode() != tree.Bi {
		t.Fatalf("access mode = %v, want Bi", p.AccessMode())
	}
}

func TestValueWireRoundTripScalars(t *testing.T) {
	cases := []value.Value{
		value.NewInt(7),
		value.NewFloat(2.25),
		value.NewString("hi"),
		value.NewBool(true),
		value.NewBool(false),
	}
	for _, v := range cases {
		tag, vals := valueToWire(v)
		got := wireToValue(tag, vals)
		if !got.Equal(v) {
			t.Fatalf("round trip %v -> %v", v, got)
		}
	}
}
