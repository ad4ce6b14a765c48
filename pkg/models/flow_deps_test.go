package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowWithTasks(tasks ...*Task) *Flow {
	return &Flow{
		Name:  "Deps Test Flow",
		Scope: FlowScopeGlobal,
		Categories: []*Category{
			{ID: "cat-1", Name: "Setup", Tasks: tasks},
		},
	}
}

func TestFlow_ValidateDependencies(t *testing.T) {
	flow := flowWithTasks(
		&Task{ID: "a", Title: "A", CompletionType: CompletionTypeManual},
		&Task{ID: "b", Title: "B", CompletionType: CompletionTypeManual, DependsOn: []string{"a"}},
		&Task{ID: "c", Title: "C", CompletionType: CompletionTypeManual, DependsOn: []string{"a", "b"}},
	)

	assert.NoError(t, flow.ValidateDependencies())
}

func TestFlow_ValidateDependencies_UnknownReference(t *testing.T) {
	flow := flowWithTasks(
		&Task{ID: "a", Title: "A", CompletionType: CompletionTypeManual, DependsOn: []string{"ghost"}},
	)

	err := flow.ValidateDependencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestFlow_ValidateDependencies_Cycle(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*Task
	}{
		{
			name: "self reference",
			tasks: []*Task{
				{ID: "a", Title: "A", CompletionType: CompletionTypeManual, DependsOn: []string{"a"}},
			},
		},
		{
			name: "two task cycle",
			tasks: []*Task{
				{ID: "a", Title: "A", CompletionType: CompletionTypeManual, DependsOn: []string{"b"}},
				{ID: "b", Title: "B", CompletionType: CompletionTypeManual, DependsOn: []string{"a"}},
			},
		},
		{
			name: "long cycle",
			tasks: []*Task{
				{ID: "a", Title: "A", CompletionType: CompletionTypeManual, DependsOn: []string{"c"}},
				{ID: "b", Title: "B", CompletionType: CompletionTypeManual, DependsOn: []string{"a"}},
				{ID: "c", Title: "C", CompletionType: CompletionTypeManual, DependsOn: []string{"b"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := flowWithTasks(tt.tasks...).ValidateDependencies()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "cycle")
		})
	}
}

func TestFlow_Tasks(t *testing.T) {
	flow := &Flow{
		Categories: []*Category{
			{ID: "cat-1", Tasks: []*Task{{ID: "a"}, {ID: "b"}}},
			{ID: "cat-2", Tasks: []*Task{{ID: "c"}}},
		},
	}

	tasks := flow.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "c", tasks[2].ID)

	assert.NotNil(t, flow.TaskByID("b"))
	assert.Nil(t, flow.TaskByID("ghost"))
}
