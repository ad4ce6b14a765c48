package models

import "fmt"

// ValidateDependencies checks that every task dependency references a task in
// the same flow and that the dependency graph is acyclic.
func (f *Flow) ValidateDependencies() error {
	tasks := f.Tasks()

	byID := make(map[string]*Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, dep)
			}
		}
	}

	// Colors: 0 unvisited, 1 on the current path, 2 done.
	colors := make(map[string]int, len(tasks))

	var visit func(id string) error

	visit = func(id string) error {
		switch colors[id] {
		case 1:
			return fmt.Errorf("task dependency cycle involving %s", id)
		case 2:
			return nil
		}

		colors[id] = 1

		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}

		colors[id] = 2

		return nil
	}

	for _, task := range tasks {
		if err := visit(task.ID); err != nil {
			return err
		}
	}

	return nil
}
