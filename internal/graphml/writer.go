package graphml

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
	"github.com/hexfury/graphport/internal/typemap"
)

const (
	graphmlNamespace = "http://graphml.graphdrawing.org/xmlns"
	xsiNamespace     = "http://www.w3.org/2001/XMLSchema-instance"
	schemaLocation   = "http://graphml.graphdrawing.org/xmlns http://graphml.graphdrawing.org/xmlns/1.1/graphml.xsd"
)

// WriterOptions controls document shape on export.
type WriterOptions struct {
	// UseTypes annotates key declarations with attr.type and attr.list so
	// a round trip restores typed values instead of strings.
	UseTypes bool
	// ReadLabels mirrors labels into data elements alongside the label
	// attributes, matching what a labels-aware import expects.
	ReadLabels bool
}

// Writer serializes a subgraph as a GraphML document.
type Writer struct {
	opts WriterOptions
	log  *zap.Logger
}

func NewWriter(opts WriterOptions, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{opts: opts, log: log.Named("graphml")}
}

// Write renders g to dst. Key declarations cover every property key whose
// observed values map onto a GraphML type; heterogeneous keys keep their
// data elements but get no declaration.
func (w *Writer) Write(dst io.Writer, g *schemas.Subgraph) error {
	nodeTypes, err := typemap.ForNodes(g.Nodes)
	if err != nil {
		return err
	}
	relTypes, err := typemap.ForRelationships(g.Relationships)
	if err != nil {
		return err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("graphml")
	root.CreateAttr("xmlns", graphmlNamespace)
	root.CreateAttr("xmlns:xsi", xsiNamespace)
	root.CreateAttr("xsi:schemaLocation", schemaLocation)

	if w.opts.ReadLabels {
		writeLabelKey(root, "labels", "node")
	}
	w.writeKeys(root, nodeTypes, "node")
	if w.opts.ReadLabels {
		writeLabelKey(root, "label", "edge")
	}
	w.writeKeys(root, relTypes, "edge")

	graph := root.CreateElement("graph")
	graph.CreateAttr("id", "G")
	graph.CreateAttr("edgedefault", "directed")

	for i := range g.Nodes {
		w.writeNode(graph, &g.Nodes[i])
	}
	for i := range g.Relationships {
		w.writeRelationship(graph, &g.Relationships[i])
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(dst); err != nil {
		return fmt.Errorf("graphml: write document: %w", err)
	}
	w.log.Debug("document written",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("relationships", len(g.Relationships)))
	return nil
}

// writeLabelKey declares the untyped key that label data elements reference.
func writeLabelKey(root *etree.Element, id, forKind string) {
	key := root.CreateElement("key")
	key.CreateAttr("id", id)
	key.CreateAttr("for", forKind)
	key.CreateAttr("attr.name", id)
}

func (w *Writer) writeKeys(root *etree.Element, types *typemap.Map, forKind string) {
	for _, id := range types.Keys() {
		pk, _ := types.Kind(id)
		name := typemap.TypeFor(pk.Kind, typemap.GraphMLAllowed)
		if name == "" {
			continue
		}
		key := root.CreateElement("key")
		key.CreateAttr("id", id)
		key.CreateAttr("for", forKind)
		key.CreateAttr("attr.name", id)
		if !w.opts.UseTypes {
			continue
		}
		if pk.Slice {
			key.CreateAttr("attr.type", "string")
			key.CreateAttr("attr.list", name)
		} else {
			key.CreateAttr("attr.type", name)
		}
	}
}

func (w *Writer) writeNode(graph *etree.Element, n *schemas.Node) {
	el := graph.CreateElement("node")
	el.CreateAttr("id", fmt.Sprintf("n%d", n.ID))
	if labels := typemap.LabelsString(*n); labels != "" {
		el.CreateAttr("labels", labels)
		if w.opts.ReadLabels {
			writeData(el, "labels", labels)
		}
	}
	writeProps(el, n.Props)
}

func (w *Writer) writeRelationship(graph *etree.Element, r *schemas.Relationship) {
	el := graph.CreateElement("edge")
	el.CreateAttr("id", fmt.Sprintf("e%d", r.ID))
	el.CreateAttr("source", fmt.Sprintf("n%d", r.StartID))
	el.CreateAttr("target", fmt.Sprintf("n%d", r.EndID))
	el.CreateAttr("label", r.Type)
	if w.opts.ReadLabels {
		writeData(el, "label", r.Type)
	}
	writeProps(el, r.Props)
}

func writeProps(el *etree.Element, props schemas.Properties) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeData(el, k, formatValue(props[k]))
	}
}

func writeData(el *etree.Element, key, text string) {
	data := el.CreateElement("data")
	data.CreateAttr("key", key)
	data.SetText(text)
}

// formatValue renders a property value the way its parsed form expects to
// read it back: shortest float form, bare booleans, bracketed lists joined
// with ", ".
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []string:
		return formatSlice(v)
	case []bool:
		return formatSlice(v)
	case []int8:
		return formatSlice(v)
	case []int16:
		return formatSlice(v)
	case []int32:
		return formatSlice(v)
	case []int64:
		return formatSlice(v)
	case []int:
		return formatSlice(v)
	case []uint8:
		return formatSlice(v)
	case []uint16:
		return formatSlice(v)
	case []uint32:
		return formatSlice(v)
	case []uint64:
		return formatSlice(v)
	case []uint:
		return formatSlice(v)
	case []float32:
		return formatSlice(v)
	case []float64:
		return formatSlice(v)
	case []any:
		return formatSlice(v)
	default:
		return fmt.Sprint(value)
	}
}

func formatSlice[T any](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
