package workflow

// Router picks the next label from the current state.
type Router func(s State) string

// Labels returned by RouteAfterRequirements.
const (
	RoutePause        = Pause
	RouteGeneratePost = StepGeneratePost
)

// RouteAfterRequirements sends the run to the pause terminal while any
// property detail is missing. A nil list counts as empty.
func RouteAfterRequirements(s State) string {
	if len(s.MissingInfo) > 0 {
		return RoutePause
	}
	return RouteGeneratePost
}
