package tools

// Builtins returns a fresh definition of every built-in tool in AllNames
// order.
func Builtins() []Definition {
	return []Definition{
		commentTool(),
		createProjectTool(),
		addTaskTool(),
		updateTaskTool(),
		addSubtaskTool(),
		updateSubtaskTool(),
		updateProjectTool(),
		addStakeholdersTool(),
		addPersonTool(),
		queryPortfolioTool(),
		sendEmailTool(),
	}
}

// NewDefaultCatalog returns a catalog holding the built-in tools.
func NewDefaultCatalog() *Catalog {
	c := NewCatalog()
	c.RegisterAll(Builtins())
	return c
}
