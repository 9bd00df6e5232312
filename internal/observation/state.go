package observation

// ProjectState returns the lifecycle label after action. Only pass and fail
// change it; every other action leaves current untouched.
func ProjectState(current, action Action) Action {
	if action.SetsState() {
		return action
	}
	return current
}
