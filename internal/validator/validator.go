// Package validator implements the Plan Validator: a non-mutating battery of
// checks over a Plan, returning an ordered list of violations. Checks
// accumulate into a single report instead of failing fast on the first one,
// so a repair pass can see every problem at once.
package validator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/tools"
)

// Kind identifies one of the named plan validation failure modes.
type Kind string

const (
	KindUnknownTool         Kind = "UnknownTool"
	KindInvalidDependency   Kind = "InvalidDependency"
	KindDanglingReference   Kind = "DanglingReference"
	KindMissingTerminal     Kind = "MissingTerminal"
	KindMultipleTerminals   Kind = "MultipleTerminals"
	KindMissingDelivery     Kind = "MissingDelivery"
	KindEmptyEmail          Kind = "EmptyEmail"
	KindDuplicateID         Kind = "DuplicateId"
	KindMalformedImpossible Kind = "MalformedImpossible"
)

// Violation is a single rejected invariant, naming the offending step when
// applicable.
type Violation struct {
	Kind    Kind
	StepID  int // 0 when not step-scoped
	Message string
}

func (v Violation) String() string {
	if v.StepID != 0 {
		return string(v.Kind) + " (step " + strconv.Itoa(v.StepID) + "): " + v.Message
	}
	return string(v.Kind) + ": " + v.Message
}

// ToolChecker reports whether a tool name is registered. Satisfied by
// *tools.Registry.
type ToolChecker interface {
	Has(name tools.Ident) bool
}

var templateRef = regexp.MustCompile(`\$step(\d+)\.`)

// Validate runs every structural and delivery check over p and returns every
// violation found, in check order. A nil/empty result means the plan is
// accepted. Validate never mutates p.
func Validate(p plan.Plan, registry ToolChecker, intent plan.DeliveryIntent, requireDelivery bool) []Violation {
	var violations []Violation

	ids := make(map[int]plan.Step)
	var duplicateIDs []int
	for _, s := range p.Steps {
		if _, dup := ids[s.ID]; dup {
			duplicateIDs = append(duplicateIDs, s.ID)
			continue
		}
		ids[s.ID] = s
	}
	for _, id := range duplicateIDs {
		violations = append(violations, Violation{Kind: KindDuplicateID, StepID: id, Message: "duplicate step id"})
	}

	if p.Complexity == plan.ComplexityImpossible {
		if len(p.Steps) != 1 || p.Steps[0].Action != plan.ReplyToUserAction {
			violations = append(violations, Violation{
				Kind:    KindMalformedImpossible,
				Message: "an impossible plan must contain exactly one reply_to_user step",
			})
		}
		// An impossible plan's sole content is the explanatory reply_to_user
		// step; the remaining structural checks below still apply to it
		// (unknown tool, terminal count) and are intentionally not skipped.
	}

	for _, s := range p.Steps {
		if !registry.Has(tools.Ident(s.Action)) {
			violations = append(violations, Violation{Kind: KindUnknownTool, StepID: s.ID, Message: "action \"" + s.Action + "\" is not a registered tool"})
		}
	}

	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			depStep, ok := ids[dep]
			if !ok {
				violations = append(violations, Violation{Kind: KindInvalidDependency, StepID: s.ID, Message: "depends on unknown step " + strconv.Itoa(dep)})
				continue
			}
			if depStep.ID >= s.ID {
				violations = append(violations, Violation{Kind: KindInvalidDependency, StepID: s.ID, Message: "depends on step " + strconv.Itoa(dep) + ", which is not a lower id"})
			}
		}
	}

	for _, s := range p.Steps {
		refs := collectTemplateRefs(s.Parameters)
		for _, ref := range refs {
			if !s.DependsOn(ref) {
				violations = append(violations, Violation{
					Kind:    KindDanglingReference,
					StepID:  s.ID,
					Message: "references $step" + strconv.Itoa(ref) + " without declaring it as a dependency",
				})
			}
		}
	}

	terminals := p.TerminalSteps()
	switch {
	case len(terminals) == 0:
		violations = append(violations, Violation{Kind: KindMissingTerminal, Message: "plan has no reply_to_user step"})
	case len(terminals) > 1:
		violations = append(violations, Violation{Kind: KindMultipleTerminals, Message: "plan has more than one reply_to_user step"})
	}

	if requireDelivery && intent.HasIntent {
		found := false
		for _, s := range p.Steps {
			if s.Action == intent.RequiredTool {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations, Violation{Kind: KindMissingDelivery, Message: "delivery intent detected but plan omits \"" + intent.RequiredTool + "\""})
		}
	}

	for _, s := range p.Steps {
		if s.Action != "compose_email" {
			continue
		}
		body, _ := s.Parameters["body"].(string)
		attachments, _ := s.Parameters["attachments"].([]any)
		if strings.TrimSpace(body) == "" && len(attachments) == 0 {
			violations = append(violations, Violation{Kind: KindEmptyEmail, StepID: s.ID, Message: "compose_email step has neither body nor attachments"})
		}
	}

	return violations
}

// collectTemplateRefs walks a step's parameters and returns the set of step
// ids referenced via $stepN.… template syntax, in either direct or inline
// form, without resolving them (this is a syntactic scan, not template.Resolve).
func collectTemplateRefs(params map[string]any) []int {
	seen := make(map[int]struct{})
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range templateRef.FindAllStringSubmatch(t, -1) {
				n, _ := strconv.Atoi(m[1])
				seen[n] = struct{}{}
			}
		case map[string]any:
			for _, vv := range t {
				walk(vv)
			}
		case []any:
			for _, vv := range t {
				walk(vv)
			}
		}
	}
	for _, v := range params {
		walk(v)
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

