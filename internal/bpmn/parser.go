package bpmn

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/beevik/etree"

	"github.com/rendis/macta/pkg/schema"
)

// Parse imports a BPMN 2.0 XML document into a ProcessGraph.
// Malformed input fails with schema.ErrCodeInvalidXML and no graph.
func Parse(xmlText string) (*ProcessGraph, error) {
	root, err := ReadDocument(xmlText)
	if err != nil {
		return nil, err
	}

	g := &ProcessGraph{
		Elements: make(map[string]*ProcessElement),
		Source:   xmlText,
	}

	// Lanes must be known before any element is classified.
	owners := make(map[string]string)
	walk(root, func(el *etree.Element) {
		if !strings.EqualFold(el.Tag, "lane") {
			return
		}
		lane := Lane{ID: Attr(el, "id"), Name: Attr(el, "name")}
		for _, ref := range childrenByTag(el, "flowNodeRef") {
			id := strings.TrimSpace(ref.Text())
			if id == "" {
				continue
			}
			lane.FlowNodeRefs = append(lane.FlowNodeRefs, id)
			if lane.Name != "" {
				if _, taken := owners[id]; !taken {
					owners[id] = lane.Name
				}
			}
		}
		g.Lanes = append(g.Lanes, lane)
	})

	g.Flows = ReadFlows(root)

	walk(root, func(el *etree.Element) {
		id := Attr(el, "id")
		if id == "" {
			return
		}
		if _, dup := g.Elements[id]; dup {
			return
		}
		if strings.EqualFold(el.Tag, "process") && g.ProcessID == "" {
			g.ProcessID = id
			g.ProcessName = Attr(el, "name")
			g.Description = documentation(el)
		}

		kind := Classify(el.Tag)
		pe := &ProcessElement{
			ID:          id,
			Name:        Attr(el, "name"),
			Description: documentation(el),
			Kind:        kind,
			Tag:         el.Tag,
		}
		if owner, ok := owners[id]; ok {
			pe.Owner = owner
		} else {
			pe.Owner = DefaultOwner(kind)
		}
		g.Elements[id] = pe
		g.Order = append(g.Order, id)

		switch kind.Category() {
		case CategoryTask:
			g.Tasks = append(g.Tasks, pe)
		case CategoryGateway:
			g.Gateways = append(g.Gateways, pe)
		case CategoryStart:
			g.StartEvents = append(g.StartEvents, pe)
		case CategoryEnd:
			g.EndEvents = append(g.EndEvents, pe)
		}
	})

	for _, gw := range g.Gateways {
		for _, f := range g.Outgoing(gw.ID) {
			if f.Name != "" {
				gw.Conditions = append(gw.Conditions, f.Name)
			}
		}
	}

	g.imported = true
	return g, nil
}

// ReadDocument checks that xmlText is well-formed and returns its root element.
func ReadDocument(xmlText string) (*etree.Element, error) {
	if err := checkWellFormed(xmlText); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidXML, "malformed process XML: %s", err.Error()).WithCause(err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlText); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidXML, "malformed process XML: %s", err.Error()).WithCause(err)
	}
	root := doc.Root()
	if root == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidXML, "process XML has no root element")
	}
	return root, nil
}

// ReadFlows collects every sequenceFlow under root in declaration order.
func ReadFlows(root *etree.Element) []SequenceFlow {
	var flows []SequenceFlow
	walk(root, func(el *etree.Element) {
		if !strings.EqualFold(el.Tag, "sequenceFlow") {
			return
		}
		f := SequenceFlow{
			ID:        Attr(el, "id"),
			SourceRef: Attr(el, "sourceRef"),
			TargetRef: Attr(el, "targetRef"),
			Name:      Attr(el, "name"),
		}
		if cond := childrenByTag(el, "conditionExpression"); len(cond) > 0 {
			f.ConditionExpression = strings.TrimSpace(cond[0].Text())
		}
		flows = append(flows, f)
	})
	return flows
}

// Attr returns the value of the attribute with the given local name,
// ignoring any namespace prefix, or "" when absent.
func Attr(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if a.Key == key && a.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

// walk visits el and its descendants depth-first in document order.
func walk(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, c := range el.ChildElements() {
		walk(c, fn)
	}
}

func childrenByTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if strings.EqualFold(c.Tag, tag) {
			out = append(out, c)
		}
	}
	return out
}

func documentation(el *etree.Element) string {
	docs := childrenByTag(el, "documentation")
	if len(docs) == 0 {
		return ""
	}
	return strings.TrimSpace(docs[0].Text())
}

// checkWellFormed runs a strict token pass so that mismatched or unclosed
// tags, and text outside the root element, are rejected before the DOM is
// built. Comments, processing instructions and whitespace may surround the root.
func checkWellFormed(xmlText string) error {
	dec := xml.NewDecoder(strings.NewReader(xmlText))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(tok)) > 0 {
				return errors.New("text outside the root element")
			}
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots == 0 {
		return errors.New("no root element")
	}
	if roots > 1 {
		return errors.New("multiple root elements")
	}
	return nil
}

// ReadNames indexes every element under root that carries an id, mapping the
// id to its name attribute or, when unnamed, to the id itself.
func ReadNames(root *etree.Element) map[string]string {
	names := make(map[string]string)
	walk(root, func(el *etree.Element) {
		id := Attr(el, "id")
		if id == "" {
			return
		}
		if _, dup := names[id]; dup {
			return
		}
		if name := Attr(el, "name"); name != "" {
			names[id] = name
		} else {
			names[id] = id
		}
	})
	return names
}
