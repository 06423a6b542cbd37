// Package license enforces per-plan usage limits on metered actions.
package license

// Metered actions. Every one of these consumes against a plan limit.
const (
	ActionAddTechnician  = "add_technician"
	ActionAddAdmin       = "add_admin"
	ActionCreateWorkflow = "create_workflow"
	ActionUploadFile     = "upload_file"
	ActionAPICall        = "api_call"
	ActionRunDiagnostic  = "run_diagnostic"
)

// Plan names. The entry-level plan doubles as the fallback when no
// subscription is on record.
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Unlimited marks an action with no cap on a plan.
const Unlimited int64 = -1

// PlanLimits maps each metered action to its cap for one plan.
type PlanLimits map[string]int64

var planLimits = map[string]PlanLimits{
	PlanStarter: {
		ActionAddTechnician:  2,
		ActionAddAdmin:       1,
		ActionCreateWorkflow: 10,
		ActionUploadFile:     100,
		ActionAPICall:        1000,
		ActionRunDiagnostic:  50,
	},
	PlanProfessional: {
		ActionAddTechnician:  10,
		ActionAddAdmin:       3,
		ActionCreateWorkflow: 100,
		ActionUploadFile:     1000,
		ActionAPICall:        10000,
		ActionRunDiagnostic:  500,
	},
	PlanEnterprise: {
		ActionAddTechnician:  Unlimited,
		ActionAddAdmin:       Unlimited,
		ActionCreateWorkflow: Unlimited,
		ActionUploadFile:     Unlimited,
		ActionAPICall:        Unlimited,
		ActionRunDiagnostic:  Unlimited,
	},
}

// DailyActions are the counters the scheduler resets every night.
var DailyActions = []string{ActionAPICall, ActionRunDiagnostic}

// LimitsFor returns the limits of the named plan. Unknown plans get the
// entry-level limits, the same as no subscription at all.
func LimitsFor(plan string) PlanLimits {
	if limits, ok := planLimits[plan]; ok {
		return limits
	}
	return planLimits[PlanStarter]
}
