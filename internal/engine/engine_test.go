package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	_ "github.com/linkflow-ai/linkflow-ai/internal/engine/nodes"
)

func constantRef(v interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "constant", "content": v}
}

func nodeRef(nodeID, slot string) map[string]interface{} {
	return map[string]interface{}{"type": "ref", "content": []interface{}{nodeID, slot}}
}

// scenario 1: Linear print — start_1 -> print_1 -> end_1, print_1's input
// is a constant "hello".
func TestRun_LinearPrint(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start"},
			{ID: "print_1", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": constantRef("hello")},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "print_1"},
			{SourceNodeID: "print_1", TargetNodeID: "end_1"},
		},
	}

	var outputs []engine.NodesOutput
	var statuses []engine.NodeStatusChange

	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	eng.Bus().On(engine.EventNodesOutput, func(p interface{}) {
		outputs = append(outputs, p.(engine.NodesOutput))
	})
	eng.Bus().On(engine.EventNodeStatusChange, func(p interface{}) {
		statuses = append(statuses, p.(engine.NodeStatusChange))
	})

	_, err = eng.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, outputs, 1)
	assert.Equal(t, "print_1", outputs[0].NodeID)
	assert.Equal(t, "hello", outputs[0].Output)

	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1]
	assert.Equal(t, "end_1", last.NodeID)
	assert.Equal(t, engine.NodeSucceeded, last.Status)
}

// scenario 2: Reference resolution — print_1 reads start_1's "msg" slot.
func TestRun_ReferenceResolution(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start", Data: map[string]interface{}{
				"outputs": map[string]interface{}{
					"properties": map[string]interface{}{
						"msg": map[string]interface{}{"type": "string", "default": "Hi"},
					},
				},
			}},
			{ID: "print_1", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": nodeRef("start_1", "msg")},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "print_1"},
			{SourceNodeID: "print_1", TargetNodeID: "end_1"},
		},
	}

	var outputs []engine.NodesOutput
	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	eng.Bus().On(engine.EventNodesOutput, func(p interface{}) {
		outputs = append(outputs, p.(engine.NodesOutput))
	})

	_, err = eng.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "Hi", outputs[0].Output)
}

// scenario 3: Condition true branch — only the matching port's node runs.
func TestRun_ConditionTrueBranch(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start", Data: map[string]interface{}{
				"outputs": map[string]interface{}{
					"properties": map[string]interface{}{
						"flag": map[string]interface{}{"type": "boolean", "default": true},
					},
				},
			}},
			{ID: "cond_1", Type: "condition", Data: map[string]interface{}{
				"conditions": []interface{}{
					map[string]interface{}{
						"key": "if_a",
						"value": map[string]interface{}{
							"left":     nodeRef("start_1", "flag"),
							"operator": "eq",
							"right":    constantRef(true),
						},
					},
					map[string]interface{}{
						"key": "if_b",
						"value": map[string]interface{}{
							"left":     nodeRef("start_1", "flag"),
							"operator": "is_true",
						},
					},
				},
			}},
			{ID: "print_a", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": constantRef("a")},
			}},
			{ID: "print_b", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": constantRef("b")},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "cond_1"},
			{SourceNodeID: "cond_1", SourcePort: "if_a", TargetNodeID: "print_a"},
			{SourceNodeID: "cond_1", SourcePort: "if_b", TargetNodeID: "print_b"},
			{SourceNodeID: "print_a", TargetNodeID: "end_1"},
			{SourceNodeID: "print_b", TargetNodeID: "end_1"},
		},
	}

	var outputs []engine.NodesOutput
	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	eng.Bus().On(engine.EventNodesOutput, func(p interface{}) {
		outputs = append(outputs, p.(engine.NodesOutput))
	})

	_, err = eng.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "a", outputs[0].Output)
}

// Postcondition: a top-level condition node with no matching branch clears
// its next transition and the run must fail, not silently report success.
func TestRun_ConditionNoMatchFailsPostcondition(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start", Data: map[string]interface{}{
				"outputs": map[string]interface{}{
					"properties": map[string]interface{}{
						"flag": map[string]interface{}{"type": "boolean", "default": false},
					},
				},
			}},
			{ID: "cond_1", Type: "condition", Data: map[string]interface{}{
				"conditions": []interface{}{
					map[string]interface{}{
						"key": "if_a",
						"value": map[string]interface{}{
							"left":     nodeRef("start_1", "flag"),
							"operator": "is_true",
						},
					},
				},
			}},
			{ID: "print_a", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": constantRef("a")},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "cond_1"},
			{SourceNodeID: "cond_1", SourcePort: "if_a", TargetNodeID: "print_a"},
			{SourceNodeID: "print_a", TargetNodeID: "end_1"},
		},
	}

	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)

	var over []engine.OverEvent
	eng.Bus().On(engine.EventOver, func(p interface{}) {
		over = append(over, p.(engine.OverEvent))
	})

	_, err = eng.Run(context.Background(), nil)
	require.Error(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, "failed", over[0].Status)
}

// Boundary: a workflow with only start and end connected directly runs to
// success with no intermediate output.
func TestRun_StartEndOnly(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start"},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "end_1"},
		},
	}
	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), nil)
	require.NoError(t, err)
}

// scenario 6: Loop over list — one print per item, in order.
func TestRun_LoopOverList(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start", Data: map[string]interface{}{
				"outputs": map[string]interface{}{
					"properties": map[string]interface{}{
						"items": map[string]interface{}{"type": "array", "default": []interface{}{"a", "b", "c"}},
					},
				},
			}},
			{ID: "loop_1", Type: "loop", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"batchFor": nodeRef("start_1", "items")},
				"blocks": []interface{}{
					map[string]interface{}{"id": "start_inner", "type": "start"},
					map[string]interface{}{"id": "print_inner", "type": "print", "data": map[string]interface{}{
						"inputsValues": map[string]interface{}{"input": nodeRef("loop_1", "item")},
					}},
					map[string]interface{}{"id": "end_inner", "type": "end"},
				},
				"edges": []interface{}{
					map[string]interface{}{"sourceNodeID": "start_inner", "targetNodeID": "print_inner"},
					map[string]interface{}{"sourceNodeID": "print_inner", "targetNodeID": "end_inner"},
				},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "loop_1"},
			{SourceNodeID: "loop_1", TargetNodeID: "end_1"},
		},
	}

	var outputs []string
	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	eng.Bus().On(engine.EventNodesOutput, func(p interface{}) {
		outputs = append(outputs, p.(engine.NodesOutput).Output)
	})

	_, err = eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, outputs)
}

// Boundary: loop over an empty iterable runs zero inner iterations.
func TestRun_LoopOverEmptyList(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start", Data: map[string]interface{}{
				"outputs": map[string]interface{}{
					"properties": map[string]interface{}{
						"items": map[string]interface{}{"type": "array"},
					},
				},
			}},
			{ID: "loop_1", Type: "loop", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"batchFor": nodeRef("start_1", "items")},
				"blocks": []interface{}{
					map[string]interface{}{"id": "start_inner", "type": "start"},
					map[string]interface{}{"id": "print_inner", "type": "print", "data": map[string]interface{}{
						"inputsValues": map[string]interface{}{"input": nodeRef("loop_1", "item")},
					}},
					map[string]interface{}{"id": "end_inner", "type": "end"},
				},
				"edges": []interface{}{
					map[string]interface{}{"sourceNodeID": "start_inner", "targetNodeID": "print_inner"},
					map[string]interface{}{"sourceNodeID": "print_inner", "targetNodeID": "end_inner"},
				},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "loop_1"},
			{SourceNodeID: "loop_1", TargetNodeID: "end_1"},
		},
	}

	var innerOutputs int
	var loopStatuses []engine.NodeStatusChange
	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	eng.Bus().On(engine.EventNodesOutput, func(p interface{}) { innerOutputs++ })
	eng.Bus().On(engine.EventNodeStatusChange, func(p interface{}) {
		sc := p.(engine.NodeStatusChange)
		if sc.NodeID == "loop_1" {
			loopStatuses = append(loopStatuses, sc)
		}
	})

	_, err = eng.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, innerOutputs)
	require.NotEmpty(t, loopStatuses)
	assert.Equal(t, engine.NodeSucceeded, loopStatuses[len(loopStatuses)-1].Status)
}

// Breakpoint + step (scenario 4): a debug run pauses at the breakpointed
// node, steps exactly one node forward, then resumes to completion.
func TestDebugRun_BreakpointAndStep(t *testing.T) {
	doc := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start"},
			{ID: "print_1", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": constantRef("hello")},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "print_1"},
			{SourceNodeID: "print_1", TargetNodeID: "end_1"},
		},
	}

	eng, err := engine.NewEngine(doc, nil, nil, nil)
	require.NoError(t, err)
	eng.SetBreakpoints([]string{"print_1"})

	var paused []engine.PausedEvent
	var over []engine.OverEvent
	eng.Bus().On(engine.EventExecutionPaused, func(p interface{}) {
		paused = append(paused, p.(engine.PausedEvent))
	})
	eng.Bus().On(engine.EventOver, func(p interface{}) {
		over = append(over, p.(engine.OverEvent))
	})

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		eng.DebugRun(ctx)
		close(done)
	}()

	waitUntil(t, func() bool { return len(paused) >= 1 })
	assert.Equal(t, "print_1", paused[0].NodeID)
	assert.Equal(t, "Breakpoint hit", paused[0].Reason)

	eng.StepOver(ctx)
	waitUntil(t, func() bool { return len(paused) >= 2 })
	assert.Equal(t, "Step mode", paused[1].Reason)

	eng.Resume()
	<-done
	require.Len(t, over, 1)
	assert.Equal(t, "success", over[0].Status)
}
