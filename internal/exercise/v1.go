package exercise

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/plags-org/judge/internal/limitrun"
)

const SchemaVersionV1 = "v1.0"

// transitionOtherwise is the catch-all key inside a state's transition
// table. It resolves every outcome class not mapped explicitly.
const transitionOtherwise = "otherwise"

func loadV1(doc map[string]any) (*Definition, error) {
	root := route{}
	rootObj, err := requireObject(doc, root,
		mapset.NewThreadUnsafeSet("schema_version", "exercise", "judge"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return nil, err
	}

	def := &Definition{SchemaVersion: SchemaVersionV1}

	exRoute := root.child("exercise")
	exObj, err := requireObject(rootObj["exercise"], exRoute,
		mapset.NewThreadUnsafeSet("name", "version"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return nil, err
	}
	if def.ExerciseName, err = requireString(exObj["name"], exRoute.child("name"), 64); err != nil {
		return nil, err
	}
	if def.ExerciseVersion, err = requireString(exObj["version"], exRoute.child("version"), 64); err != nil {
		return nil, err
	}

	judgeRoute := root.child("judge")
	judgeObj, err := requireObject(rootObj["judge"], judgeRoute,
		mapset.NewThreadUnsafeSet("environment", "preprocess", "evaluation"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return nil, err
	}

	envRoute := judgeRoute.child("environment")
	envObj, err := requireObject(judgeObj["environment"], envRoute,
		mapset.NewThreadUnsafeSet("name", "version"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return nil, err
	}
	if def.Environment, err = requireString(envObj["name"], envRoute.child("name"), 64); err != nil {
		return nil, err
	}
	if _, err = requireString(envObj["version"], envRoute.child("version"), 64); err != nil {
		return nil, err
	}

	preRoute := judgeRoute.child("preprocess")
	preObj, err := requireObject(judgeObj["preprocess"], preRoute,
		mapset.NewThreadUnsafeSet("rename"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return nil, err
	}
	if preObj["rename"] != nil {
		if def.Rename, err = requireString(preObj["rename"], preRoute.child("rename"), 64); err != nil {
			return nil, err
		}
	}

	evalRoute := judgeRoute.child("evaluation")
	evalObj, err := requireObject(judgeObj["evaluation"], evalRoute,
		mapset.NewThreadUnsafeSet("initial_state", "terminal_states", "max_total_time", "max_transitions", "states"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return nil, err
	}

	if def.InitialState, err = requireString(evalObj["initial_state"], evalRoute.child("initial_state"), 64); err != nil {
		return nil, err
	}

	terminals, err := requireStringList(evalObj["terminal_states"], evalRoute.child("terminal_states"), 64)
	if err != nil {
		return nil, err
	}
	def.TerminalStates = mapset.NewThreadUnsafeSet(terminals...)

	if def.MaxTotalTime, err = parseTimeLimit(evalObj["max_total_time"], evalRoute.child("max_total_time")); err != nil {
		return nil, err
	}
	maxTransitions, err := requireInt(evalObj["max_transitions"], evalRoute.child("max_transitions"))
	if err != nil {
		return nil, err
	}
	def.MaxTransitions = int(maxTransitions)

	statesRoute := evalRoute.child("states")
	statesObj, ok := evalObj["states"].(map[string]any)
	if !ok {
		return nil, validationErrorf("setting %q must be a JSON object", statesRoute.String())
	}
	def.States = make(map[string]State, len(statesObj))
	for name, node := range statesObj {
		state, err := loadV1State(name, node, statesRoute.child(name))
		if err != nil {
			return nil, err
		}
		def.States[name] = state
	}

	if err := validateGraph(def); err != nil {
		return nil, err
	}
	return def, nil
}

func loadV1State(name string, node any, r route) (State, error) {
	stateObj, err := requireObject(node, r,
		mapset.NewThreadUnsafeSet("action", "limits", "transition"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return State{}, err
	}

	state := State{Name: name}
	if state.Script, err = requireString(stateObj["action"], r.child("action"), 64); err != nil {
		return State{}, err
	}

	limRoute := r.child("limits")
	limObj, err := requireObject(stateObj["limits"], limRoute,
		mapset.NewThreadUnsafeSet("cpu_time", "wall_time", "memory"),
		mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return State{}, err
	}
	lim := limitrun.Limits{}
	if lim.CpuTime, err = parseTimeLimit(limObj["cpu_time"], limRoute.child("cpu_time")); err != nil {
		return State{}, err
	}
	if lim.WallTime, err = parseTimeLimit(limObj["wall_time"], limRoute.child("wall_time")); err != nil {
		return State{}, err
	}
	if lim.MemoryBytes, err = parseMemoryLimit(limObj["memory"], limRoute.child("memory")); err != nil {
		return State{}, err
	}
	state.Limits = lim

	trRoute := r.child("transition")
	allowed := mapset.NewThreadUnsafeSet(transitionOtherwise)
	for _, class := range OutcomeClasses() {
		allowed.Add(string(class))
	}
	trObj, err := requireObject(stateObj["transition"], trRoute,
		mapset.NewThreadUnsafeSet[string](), allowed)
	if err != nil {
		return State{}, err
	}

	explicit := make(map[OutcomeClass]string)
	otherwise := ""
	for key, target := range trObj {
		targetName, err := requireString(target, trRoute.child(key), 64)
		if err != nil {
			return State{}, err
		}
		if key == transitionOtherwise {
			otherwise = targetName
			continue
		}
		explicit[OutcomeClass(key)] = targetName
	}

	// Resolve the catch-all so the stored table is total and every run
	// time lookup is a plain map access.
	state.Transitions = make(map[OutcomeClass]string, len(OutcomeClasses()))
	for _, class := range OutcomeClasses() {
		if target, ok := explicit[class]; ok {
			state.Transitions[class] = target
			continue
		}
		if otherwise == "" {
			return State{}, validationErrorf(
				"setting %q does not cover outcome %q and has no %q entry",
				trRoute.String(), class, transitionOtherwise)
		}
		state.Transitions[class] = otherwise
	}
	return state, nil
}

// validateGraph enforces the structural invariants: reserved names are
// untouched, exactly one declared initial state, every transition
// target resolves, no limit is degenerate.
func validateGraph(def *Definition) error {
	declared := mapset.NewThreadUnsafeSet[string]()
	for name := range def.States {
		declared.Add(name)
	}

	for _, reserved := range []string{StateAccept, StateTimeoutAborted} {
		if declared.Contains(reserved) {
			return validationErrorf("state name %q is reserved and must not be redefined", reserved)
		}
		if def.TerminalStates.Contains(reserved) {
			return validationErrorf("terminal state name %q is reserved", reserved)
		}
	}

	overlap := def.TerminalStates.Intersect(declared)
	if overlap.Cardinality() > 0 {
		return validationErrorf("states %v are both declared and terminal", sorted(overlap))
	}

	if !declared.Contains(def.InitialState) {
		return validationErrorf("initial state %q is not a declared state", def.InitialState)
	}

	valid := declared.Union(def.TerminalStates)
	valid.Add(StateAccept)
	for name, state := range def.States {
		for class, target := range state.Transitions {
			if !valid.Contains(target) {
				return validationErrorf(
					"state %q maps outcome %q to unknown state %q", name, class, target)
			}
		}
		if state.Limits.CpuTime <= 0 || state.Limits.WallTime <= 0 || state.Limits.MemoryBytes <= 0 {
			return validationErrorf("state %q has a non-positive resource limit", name)
		}
	}

	if def.MaxTotalTime <= 0 {
		return validationErrorf("max_total_time must be positive, got %s", def.MaxTotalTime)
	}
	if def.MaxTransitions < 1 {
		return validationErrorf("max_transitions must be at least 1, got %d", def.MaxTransitions)
	}
	if def.MaxTotalTime > 24*time.Hour {
		return validationErrorf("max_total_time %s is unreasonably large", def.MaxTotalTime)
	}
	return nil
}
