// Package plan defines the run plan domain: products, actions, aggregate
// expansion, and the form-name prompt derivation the wizard and orchestrator
// share.
package plan

import "strings"

// EnvironmentStaging is the only environment the wizard ever selects on its
// own. Production runs require an explicit config override.
const EnvironmentStaging = "staging"

// Product identifies one of the two product areas by dashboard slug.
type Product string

const (
	ProductScheduling Product = "scheduling"
	ProductCurriculum Product = "curriculum"

	// ProductAll is the placeholder slug carried by an all-products plan
	// until each action resolves its own product.
	ProductAll Product = "all"
)

// CategoryLabel returns the folder label used inside a run workspace.
func (p Product) CategoryLabel() string {
	switch p {
	case ProductScheduling:
		return "Academic Scheduling"
	case ProductCurriculum:
		return "Curriculum Management"
	default:
		return string(p)
	}
}

// Action names one concrete end-to-end scenario, or an aggregate marker that
// expands to an ordered list of them.
type Action string

const (
	ActionUpdateSection       Action = "update-section"
	ActionCreateSection       Action = "create-section"
	ActionCreateSectionBare   Action = "create-section-bare"
	ActionEditRelationships   Action = "edit-relationships"
	ActionCreateRelationships Action = "create-relationships"
	ActionInactivateSection   Action = "inactivate-section"

	ActionUpdateCourse      Action = "update-course"
	ActionInactivateCourse  Action = "inactivate-course"
	ActionNewCourseRevision Action = "new-course-revision"
	ActionProposeNewCourse  Action = "propose-new-course"

	ActionProposeNewProgram Action = "propose-new-program"
	ActionUpdateProgram     Action = "update-program"

	ActionAllScheduling Action = "all-scheduling"
	ActionAllCurriculum Action = "all-curriculum"
	ActionAllProducts   Action = "all-products"
)

// schedulingSequence is the literal order an all-scheduling run executes in.
var schedulingSequence = []Action{
	ActionUpdateSection,
	ActionCreateSection,
	ActionCreateSectionBare,
	ActionEditRelationships,
	ActionCreateRelationships,
	ActionInactivateSection,
}

// curriculumSequence is the literal order an all-curriculum run executes in.
// Program scenarios are deliberately absent: aggregates only cover course
// flows.
var curriculumSequence = []Action{
	ActionUpdateCourse,
	ActionInactivateCourse,
	ActionNewCourseRevision,
	ActionProposeNewCourse,
}

// IsAggregate reports whether the action expands to multiple scenarios.
func (a Action) IsAggregate() bool {
	switch a {
	case ActionAllScheduling, ActionAllCurriculum, ActionAllProducts:
		return true
	}
	return false
}

// Product returns the product category a concrete action belongs to.
func (a Action) Product() Product {
	switch a {
	case ActionUpdateSection, ActionCreateSection, ActionCreateSectionBare,
		ActionEditRelationships, ActionCreateRelationships, ActionInactivateSection,
		ActionAllScheduling:
		return ProductScheduling
	case ActionAllProducts:
		return ProductAll
	default:
		return ProductCurriculum
	}
}

// Expand resolves an action into the ordered list of concrete scenarios a run
// executes. Concrete actions expand to themselves.
func Expand(a Action) []Action {
	switch a {
	case ActionAllScheduling:
		return append([]Action(nil), schedulingSequence...)
	case ActionAllCurriculum:
		return append([]Action(nil), curriculumSequence...)
	case ActionAllProducts:
		expanded := make([]Action, 0, len(schedulingSequence)+len(curriculumSequence))
		expanded = append(expanded, schedulingSequence...)
		return append(expanded, curriculumSequence...)
	default:
		return []Action{a}
	}
}

// ConcreteActions lists every runnable scenario across both products,
// including the program scenarios that never join an aggregate.
func ConcreteActions() []Action {
	return append(Expand(ActionAllProducts), ActionProposeNewProgram, ActionUpdateProgram)
}

// EffectiveProduct resolves the product slug a single action runs under. The
// relationship scenarios always run against the scheduling dashboard so it is
// pre-filtered correctly, regardless of what the plan selected.
func EffectiveProduct(a Action, planned Product) Product {
	switch a {
	case ActionEditRelationships, ActionCreateRelationships:
		return ProductScheduling
	}
	if planned == ProductAll {
		return a.Product()
	}
	return planned
}

// IsPeopleSoft reports whether a school identifier marks a PeopleSoft tenant.
// Tenant provisioning encodes the SIS vendor into the school id.
func IsPeopleSoft(schoolID string) bool {
	return strings.Contains(strings.ToLower(schoolID), "peoplesoft")
}

// FormPrompt identifies one pending form-name question.
type FormPrompt string

const (
	PromptCourse  FormPrompt = "course"
	PromptProgram FormPrompt = "program"
)

const (
	DefaultCourseFormName  = "Propose New Course"
	DefaultProgramFormName = "Propose New Program"
)

// DefaultName returns the fallback form name applied when the operator
// accepts the default.
func (p FormPrompt) DefaultName() string {
	if p == PromptProgram {
		return DefaultProgramFormName
	}
	return DefaultCourseFormName
}

// PromptQueue derives the ordered form-name prompts an action requires.
// PeopleSoft tenants additionally collect a program form name for aggregate
// course runs.
func PromptQueue(a Action, peopleSoft bool) []FormPrompt {
	switch a {
	case ActionProposeNewCourse:
		return []FormPrompt{PromptCourse}
	case ActionProposeNewProgram:
		return []FormPrompt{PromptProgram}
	case ActionAllCurriculum, ActionAllProducts:
		queue := []FormPrompt{PromptCourse}
		if peopleSoft {
			queue = append(queue, PromptProgram)
		}
		return queue
	default:
		return nil
	}
}

// RunPlan is the fully resolved output of the wizard and the sole input to
// the orchestrator. It is immutable once produced.
type RunPlan struct {
	Email           string
	Password        string
	Environment     string
	Product         Product
	SchoolID        string
	Action          Action
	CourseFormName  string
	ProgramFormName string
}
