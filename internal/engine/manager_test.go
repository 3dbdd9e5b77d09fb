package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	_ "github.com/linkflow-ai/linkflow-ai/internal/engine/nodes"
)

// scenario 5: Sub-workflow call — main calls SubA, whose print runs
// between call_1's PROCESSING and SUCCEEDED. After completion, the
// manager's live sub-workflow engine set is empty and the call stack is
// empty.
func TestManager_SubworkflowCall(t *testing.T) {
	main := engine.WorkflowDocument{
		ID:   "main",
		Kind: engine.WorkflowMain,
		Nodes: []engine.NodeDocument{
			{ID: "start_1", Type: "start"},
			{ID: "call_1", Type: "call", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"subworkflow_id": constantRef("SubA")},
			}},
			{ID: "end_1", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_1", TargetNodeID: "call_1"},
			{SourceNodeID: "call_1", TargetNodeID: "end_1"},
		},
	}
	sub := engine.WorkflowDocument{
		ID:   "SubA",
		Kind: engine.WorkflowSub,
		Nodes: []engine.NodeDocument{
			{ID: "start_sub", Type: "start"},
			{ID: "print_sub", Type: "print", Data: map[string]interface{}{
				"inputsValues": map[string]interface{}{"input": constantRef("from-sub")},
			}},
			{ID: "end_sub", Type: "end"},
		},
		Connections: []engine.Connection{
			{SourceNodeID: "start_sub", TargetNodeID: "print_sub"},
			{SourceNodeID: "print_sub", TargetNodeID: "end_sub"},
		},
	}

	m := engine.NewManager(nil, nil, nil)
	require.NoError(t, m.RegisterWorkflows([]engine.WorkflowDocument{main, sub}))

	var events []engine.EngineEvent
	m.Events().On(engine.EventEngine, func(p interface{}) {
		events = append(events, p.(engine.EngineEvent))
	})

	_, err := m.Run(context.Background(), nil)
	require.NoError(t, err)

	// Find call_1's PROCESSING/SUCCEEDED bounds on the main workflow and
	// assert every SubA-tagged event falls strictly between them.
	var callStart, callEnd = -1, -1
	for i, ev := range events {
		if ev.WorkflowID != "main" || ev.Name != engine.EventNodeStatusChange {
			continue
		}
		sc := ev.Payload.(engine.NodeStatusChange)
		if sc.NodeID != "call_1" {
			continue
		}
		if sc.Status == engine.NodeProcessing {
			callStart = i
		}
		if sc.Status == engine.NodeSucceeded {
			callEnd = i
		}
	}
	require.NotEqual(t, -1, callStart)
	require.NotEqual(t, -1, callEnd)
	require.Less(t, callStart, callEnd)
	for i, ev := range events {
		if ev.WorkflowID == "SubA" {
			assert.True(t, i > callStart && i < callEnd, "SubA event %d (%s) outside call_1's processing/success window", i, ev.Name)
		}
	}

	sawSubOutput := false
	for i := callStart + 1; i < callEnd; i++ {
		if events[i].WorkflowID != "SubA" {
			continue
		}
		if events[i].Name == engine.EventNodesOutput {
			out := events[i].Payload.(engine.NodesOutput)
			if out.NodeID == "print_sub" && out.Output == "from-sub" {
				sawSubOutput = true
			}
		}
	}
	assert.True(t, sawSubOutput, "expected SubA's print output between call_1's processing and success")

	status, ok := m.GetAllStatus()["SubA"]
	require.True(t, ok)
	assert.Equal(t, engine.StatusCompleted, status)

	// Memory reclaimed: SubA's engine must not still be live.
	_, stillLive := m.MemoryUsageSummary()["SubA"]
	assert.False(t, stillLive)
}
