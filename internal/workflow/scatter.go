package workflow

import (
	"context"
	"fmt"
)

// GatherOutput is the single output declared by the gather node of a scatter
// group. Its value is an []any holding one element per partition, in
// partition order.
const GatherOutput = "items"

// Scatter instantiates one task per partition element from the template and
// adds a gather node that reassembles the instance outputs indexed by
// partition position. Instances run concurrently and may finish in any
// order; the gather fills an arena of indexed slots, so the output order
// always equals the partition order. Any instance failing permanently fails
// the gather: a partial cohort is never gathered silently.
//
// The template must declare exactly one output. The returned Ref addresses
// the ordered gathered collection.
func (w *Workflow) Scatter(name string, partitions []string, template func(index int, key string) *Task) (Ref, error) {
	if len(partitions) == 0 {
		return Ref{}, fmt.Errorf("scatter %s: empty partition list", name)
	}

	gatherInputs := make(map[string]Binding, len(partitions))
	var outputName string
	for i, key := range partitions {
		t := template(i, key)
		if t == nil {
			return Ref{}, fmt.Errorf("scatter %s: template returned nil for partition %d", name, i)
		}
		if len(t.Outputs) != 1 {
			return Ref{}, fmt.Errorf("scatter %s: template must declare exactly one output, got %d", name, len(t.Outputs))
		}
		if i == 0 {
			outputName = t.Outputs[0]
		} else if t.Outputs[0] != outputName {
			return Ref{}, fmt.Errorf("scatter %s: template output name changed between partitions", name)
		}
		t.Name = scatterInstanceName(name, i)
		if err := w.Add(t); err != nil {
			return Ref{}, err
		}
		gatherInputs[slotInput(i)] = From(t.Name, outputName)
	}

	n := len(partitions)
	gather := &Task{
		Name:    gatherNodeName(name),
		Inputs:  gatherInputs,
		Outputs: []string{GatherOutput},
		Run: func(ctx context.Context, tc *TaskContext) (map[string]any, error) {
			items := make([]any, n)
			for i := 0; i < n; i++ {
				v, err := tc.Value(slotInput(i))
				if err != nil {
					return nil, err
				}
				item, ok := v.Get()
				if !ok {
					return nil, fmt.Errorf("gather slot %d is absent", i)
				}
				items[i] = item
			}
			return map[string]any{GatherOutput: items}, nil
		},
	}
	if err := w.Add(gather); err != nil {
		return Ref{}, err
	}
	return R(gather.Name, GatherOutput), nil
}

func scatterInstanceName(name string, i int) string {
	return fmt.Sprintf("%s[%d]", name, i)
}

func gatherNodeName(name string) string {
	return name + ".gather"
}

func slotInput(i int) string {
	return fmt.Sprintf("slot.%d", i)
}
