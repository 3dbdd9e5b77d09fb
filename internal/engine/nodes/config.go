// Package nodes is the built-in node type catalogue: one file per node
// type, each registering itself with the engine's global registry from an
// init() function, the same self-registration convention the node runtime
// package uses for its executors.
package nodes

import (
	"github.com/linkflow-ai/linkflow-ai/internal/engine"
)

// decodeRef reads a {"type": "constant"|"ref", "content": ...} map out of a
// node's raw Data, the wire shape every config field uses to distinguish an
// inline literal from a reference into another node's message store. A
// bare value that isn't such a descriptor (a plain string/number/bool, or a
// map with no "type" key) is treated as a literal constant, for backward
// compatibility with fields authored without the descriptor wrapper.
func decodeRef(raw interface{}) (engine.ValueRef, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return engine.ValueRef{Kind: "constant", Content: raw}, true
	}
	kind, _ := m["type"].(string)
	if kind == "" {
		return engine.ValueRef{Kind: "constant", Content: raw}, true
	}
	return engine.ValueRef{Kind: kind, Content: m["content"]}, true
}

// inputsValues reads the Data["inputsValues"] map every processor and
// control-flow node stores its per-field config under.
func inputsValues(data map[string]interface{}) map[string]interface{} {
	iv, _ := data["inputsValues"].(map[string]interface{})
	return iv
}

// fieldRef decodes the named inputsValues field as a ValueRef. ok is false
// if the field is absent or malformed.
func fieldRef(data map[string]interface{}, field string) (engine.ValueRef, bool) {
	iv := inputsValues(data)
	if iv == nil {
		return engine.ValueRef{}, false
	}
	raw, ok := iv[field]
	if !ok {
		return engine.ValueRef{}, false
	}
	return decodeRef(raw)
}

// resolveField resolves the named inputsValues field through host,
// distinguishing "field not declared" from "field declared but its
// reference target has no value yet" — both surface to the caller as
// ok=false so it can decide whether that's a MissingInput or a legal
// absence (e.g. call node's optional input_data).
func resolveField(host engine.Host, data map[string]interface{}, field string) (interface{}, bool, error) {
	ref, ok := fieldRef(data, field)
	if !ok {
		return nil, false, nil
	}
	v, err := engine.ResolveValue(host, ref)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
