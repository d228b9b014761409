package contracts

// WorkflowType describes one kind of computation the cluster can run.
// Identity is the Name; the description is display-only and takes no part
// in equality.
type WorkflowType struct {
	// Name is the technical name of the workflow.
	Name string `json:"name"`
	// Description is the human-readable name of the workflow.
	Description string `json:"description"`
}

// Equal reports whether both types denote the same workflow.
func (w WorkflowType) Equal(other WorkflowType) bool {
	return w.Name == other.Name
}

// WorkflowTypeManager is a lookup over the workflow types currently
// offered by the orchestrator.
type WorkflowTypeManager struct {
	workflows map[string]WorkflowType
}

// NewWorkflowTypeManager builds a manager over the given workflow types.
func NewWorkflowTypeManager(workflows []WorkflowType) *WorkflowTypeManager {
	byName := make(map[string]WorkflowType, len(workflows))
	for _, workflow := range workflows {
		byName[workflow.Name] = workflow
	}
	return &WorkflowTypeManager{workflows: byName}
}

// WorkflowByName finds a workflow type by its technical name.
func (m *WorkflowTypeManager) WorkflowByName(name string) (WorkflowType, bool) {
	workflow, ok := m.workflows[name]
	return workflow, ok
}

// AllWorkflows lists the known workflow types.
func (m *WorkflowTypeManager) AllWorkflows() []WorkflowType {
	all := make([]WorkflowType, 0, len(m.workflows))
	for _, workflow := range m.workflows {
		all = append(all, workflow)
	}
	return all
}

// WorkflowExists reports whether the given workflow type is known.
func (m *WorkflowTypeManager) WorkflowExists(workflow WorkflowType) bool {
	_, ok := m.workflows[workflow.Name]
	return ok
}
