package tenancy

import "net/http"

// Area is a group of guarded routes.
type Area int

const (
	// AreaTenant holds the store owner pages.
	AreaTenant Area = iota
	// AreaAdmin holds the platform admin pages.
	AreaAdmin
)

const (
	SignInPath    = "/auth/signin"
	AdminPath     = "/admin"
	DashboardPath = "/dashboard"
	PricingPath   = "/pricing"
)

// View states rendered instead of tenant data.
const (
	StatePending = "pending"
	StateNoStore = "no_store"
)

type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Render
	Deny
)

// Decision tells the HTTP layer what to do with a guarded request.
type Decision struct {
	Outcome  Outcome
	Location string
	State    string
	Message  string
}

// Status is the HTTP status that carries the decision.
func (d Decision) Status() int {
	switch d.Outcome {
	case Redirect:
		return http.StatusSeeOther
	case Deny:
		return http.StatusForbidden
	}
	return http.StatusOK
}

// Decide maps a resolution onto an area. Mutations of an inactive or missing
// store are denied rather than rendered.
func Decide(res Resolution, area Area, mutation bool) Decision {
	switch res.Kind {
	case Unauthenticated:
		return Decision{Outcome: Redirect, Location: SignInPath}
	case PlatformAdmin:
		if area == AreaTenant {
			return Decision{Outcome: Redirect, Location: AdminPath}
		}
		return Decision{Outcome: Allow}
	}

	if area == AreaAdmin {
		return Decision{Outcome: Redirect, Location: DashboardPath}
	}

	switch {
	case res.Kind == NoStore || res.Store == nil:
		d := Decision{Outcome: Render, State: StateNoStore, Location: PricingPath, Message: "You do not have a store yet. Choose a plan to create one."}
		if mutation {
			d.Outcome = Deny
		}
		return d
	case !res.Store.Active:
		d := Decision{Outcome: Render, State: StatePending, Message: "Your store is pending review. You will be notified once it is activated."}
		if mutation {
			d.Outcome, d.Message = Deny, "store pending review"
		}
		return d
	}
	return Decision{Outcome: Allow}
}
