// Package wizard implements the configuration dialogue as a pure state
// machine. It consumes one submitted line at a time and either advances,
// moves back, or rejects the input with a re-prompt message; the terminal
// front-end in internal/tui is just a renderer around it.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/proofrun/proofrun/internal/plan"
	"github.com/proofrun/proofrun/internal/session"
)

// Step identifies one dialogue state.
type Step int

const (
	StepEmail Step = iota
	StepPassword
	StepProduct
	StepSchoolID
	StepAction
	StepFormName
	StepDone
)

// String returns the step name for logs and errors.
func (s Step) String() string {
	switch s {
	case StepEmail:
		return "email"
	case StepPassword:
		return "password"
	case StepProduct:
		return "product"
	case StepSchoolID:
		return "school-id"
	case StepAction:
		return "action"
	case StepFormName:
		return "form-name"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// backTargets is the explicit transition table for the "back" command. Each
// step hardcodes its predecessor; there is no history stack.
var backTargets = map[Step]Step{
	StepPassword: StepEmail,
	StepProduct:  StepPassword,
	StepSchoolID: StepProduct,
	StepAction:   StepSchoolID,
	StepFormName: StepAction,
}

// ErrAlreadyDone is returned when input is submitted after completion.
var ErrAlreadyDone = errors.New("wizard: dialogue already complete")

// Machine holds the transient wizard state for one invocation.
type Machine struct {
	step     Step
	prior    session.Record
	hasPrior bool
	reused   bool

	email       string
	password    string
	environment string
	product     plan.Product
	schoolID    string
	action      plan.Action

	queue           []plan.FormPrompt
	courseFormName  string
	programFormName string
}

// New builds a machine, seeding it from a prior session when one carries
// complete credentials. In that case the email and password steps are skipped
// and the dialogue opens at the product menu.
func New(prior session.Record, hasPrior bool) *Machine {
	m := &Machine{step: StepEmail, prior: prior, hasPrior: hasPrior}
	if hasPrior && prior.Complete() {
		m.email = prior.Email
		m.password = prior.Password
		m.environment = prior.Environment
		if m.environment == "" {
			m.environment = plan.EnvironmentStaging
		}
		m.reused = true
		m.step = StepProduct
	}
	return m
}

// Step returns the current dialogue state.
func (m *Machine) Step() Step {
	return m.step
}

// Done reports whether the dialogue has terminated.
func (m *Machine) Done() bool {
	return m.step == StepDone
}

// ReusedCredentials reports whether the machine skipped the sign-in questions
// by reusing the saved session.
func (m *Machine) ReusedCredentials() bool {
	return m.reused
}

// Secret reports whether the current step's input should be masked.
func (m *Machine) Secret() bool {
	return m.step == StepPassword
}

// Queue exposes the pending form-name prompts.
func (m *Machine) Queue() []plan.FormPrompt {
	return append([]plan.FormPrompt(nil), m.queue...)
}

func isBack(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "back", "b":
		return true
	}
	return false
}

// Submit applies one operator line. A returned error is a re-prompt message:
// the machine state is unchanged and the same step asks again.
func (m *Machine) Submit(input string) error {
	switch m.step {
	case StepEmail:
		return m.submitEmail(input)
	case StepPassword:
		return m.submitPassword(input)
	case StepProduct:
		return m.submitProduct(input)
	case StepSchoolID:
		return m.submitSchoolID(input)
	case StepAction:
		return m.submitAction(input)
	case StepFormName:
		return m.submitFormName(input)
	default:
		return ErrAlreadyDone
	}
}

func (m *Machine) submitEmail(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return errors.New("email is required")
	}
	if isBack(trimmed) {
		return errors.New(`"back" is not available on the first question`)
	}
	m.email = trimmed
	m.step = StepPassword
	return nil
}

func (m *Machine) submitPassword(input string) error {
	if isBack(input) {
		m.step = backTargets[StepPassword]
		return nil
	}
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return errors.New("password is required")
	}
	m.password = trimmed
	m.environment = plan.EnvironmentStaging
	m.step = StepProduct
	return nil
}

func (m *Machine) submitProduct(input string) error {
	if isBack(input) {
		m.step = backTargets[StepProduct]
		return nil
	}
	switch strings.TrimSpace(input) {
	case "1":
		m.product = plan.ProductScheduling
		m.action = ""
	case "2":
		m.product = plan.ProductCurriculum
		m.action = ""
	case "3":
		// Both products: the action is fixed now, the slug resolves per
		// action at run time.
		m.product = plan.ProductAll
		m.action = plan.ActionAllProducts
	default:
		return errors.New("choose 1, 2, or 3")
	}
	if m.environment == "" {
		m.environment = plan.EnvironmentStaging
	}
	m.step = StepSchoolID
	return nil
}

func (m *Machine) submitSchoolID(input string) error {
	if isBack(input) {
		m.step = backTargets[StepSchoolID]
		return nil
	}
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		if m.prior.SchoolID == "" {
			return errors.New("school id is required")
		}
		trimmed = m.prior.SchoolID
	}
	m.schoolID = trimmed
	m.step = StepAction
	if m.action == plan.ActionAllProducts {
		// The aggregate needs no action menu; derive its form prompts and
		// move straight on.
		m.enterFormNames(plan.PromptQueue(m.action, m.peopleSoft()))
	}
	return nil
}

func (m *Machine) submitAction(input string) error {
	if isBack(input) {
		m.step = backTargets[StepAction]
		return nil
	}
	choices := m.actionChoices()
	choice := strings.TrimSpace(input)
	action, ok := choices[choice]
	if !ok {
		return fmt.Errorf("choose a number between 1 and %d", len(choices))
	}
	m.action = action
	m.enterFormNames(plan.PromptQueue(action, m.peopleSoft()))
	return nil
}

// enterFormNames moves into the form-name step when prompts are pending and
// terminates the dialogue otherwise.
func (m *Machine) enterFormNames(queue []plan.FormPrompt) {
	m.queue = queue
	if len(m.queue) > 0 {
		m.step = StepFormName
		return
	}
	m.step = StepDone
}

func (m *Machine) submitFormName(input string) error {
	if len(m.queue) == 0 {
		m.step = StepDone
		return nil
	}
	head := m.queue[0]
	if isBack(input) {
		// The pending prompt stays queued at the front. The aggregate plan
		// has no action menu to return to, so it re-asks immediately.
		if m.action == plan.ActionAllProducts {
			return nil
		}
		m.step = backTargets[StepFormName]
		return nil
	}
	name := strings.TrimSpace(input)
	if name == "" {
		name = head.DefaultName()
	}
	switch head {
	case plan.PromptProgram:
		m.programFormName = name
	default:
		m.courseFormName = name
	}
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		m.step = StepDone
	}
	return nil
}

func (m *Machine) peopleSoft() bool {
	return plan.IsPeopleSoft(m.schoolID)
}

// actionChoices maps menu digits to actions for the selected product.
func (m *Machine) actionChoices() map[string]plan.Action {
	if m.product == plan.ProductScheduling {
		return map[string]plan.Action{
			"1": plan.ActionUpdateSection,
			"2": plan.ActionCreateSection,
			"3": plan.ActionCreateSectionBare,
			"4": plan.ActionEditRelationships,
			"5": plan.ActionCreateRelationships,
			"6": plan.ActionInactivateSection,
			"7": plan.ActionAllScheduling,
		}
	}
	choices := map[string]plan.Action{
		"1": plan.ActionUpdateCourse,
		"2": plan.ActionInactivateCourse,
		"3": plan.ActionNewCourseRevision,
		"4": plan.ActionProposeNewCourse,
	}
	if m.peopleSoft() {
		choices["5"] = plan.ActionProposeNewProgram
		choices["6"] = plan.ActionUpdateProgram
		choices["7"] = plan.ActionAllCurriculum
	} else {
		choices["5"] = plan.ActionAllCurriculum
	}
	return choices
}

// Prompt returns the question for the current step.
func (m *Machine) Prompt() string {
	switch m.step {
	case StepEmail:
		return "Operator email"
	case StepPassword:
		return "Password"
	case StepProduct:
		return "Select a product"
	case StepSchoolID:
		if m.prior.SchoolID != "" {
			return fmt.Sprintf("School id (enter to reuse %q)", m.prior.SchoolID)
		}
		return "School id"
	case StepAction:
		return "Select an action"
	case StepFormName:
		if len(m.queue) > 0 {
			head := m.queue[0]
			return fmt.Sprintf("Name for the %s form (enter for %q)", head, head.DefaultName())
		}
		return "Form name"
	default:
		return ""
	}
}

// Options returns the numbered menu for the current step, if it has one.
func (m *Machine) Options() []string {
	switch m.step {
	case StepProduct:
		return []string{
			"1. Academic Scheduling",
			"2. Curriculum Management",
			"3. Both products",
		}
	case StepAction:
		if m.product == plan.ProductScheduling {
			return []string{
				"1. Update a section",
				"2. Create a section",
				"3. Create a section without meeting or professor",
				"4. Edit relationships",
				"5. Create relationships",
				"6. Inactivate a section",
				"7. Run every Academic Scheduling action",
			}
		}
		options := []string{
			"1. Update a course",
			"2. Inactivate a course",
			"3. Create a new course revision",
			"4. Propose a new course",
		}
		if m.peopleSoft() {
			return append(options,
				"5. Propose a new program",
				"6. Update a program",
				"7. Run every course action",
			)
		}
		return append(options, "5. Run every course action")
	default:
		return nil
	}
}

// Plan returns the resolved run plan. Form names default when never prompted.
func (m *Machine) Plan() plan.RunPlan {
	course := m.courseFormName
	if course == "" {
		course = plan.DefaultCourseFormName
	}
	program := m.programFormName
	if program == "" {
		program = plan.DefaultProgramFormName
	}
	return plan.RunPlan{
		Email:           m.email,
		Password:        m.password,
		Environment:     m.environment,
		Product:         m.product,
		SchoolID:        m.schoolID,
		Action:          m.action,
		CourseFormName:  course,
		ProgramFormName: program,
	}
}

// SessionRecord returns the durable record persisted after completion. The
// action and form names are deliberately excluded.
func (m *Machine) SessionRecord() session.Record {
	return session.Record{
		Email:       m.email,
		Password:    m.password,
		Environment: m.environment,
		SchoolID:    m.schoolID,
	}
}
