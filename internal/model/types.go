package model

// Wire types for the solve API.

// NodeIn is one mission location. Demand is signed: positive loads leave
// the hub, negative loads return to it.
type NodeIn struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Demand float64 `json:"demand"`
}

// HubIn is the single depot every route starts and ends at.
type HubIn struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VehicleIn describes one fleet member.
type VehicleIn struct {
	ID            string  `json:"id"`
	Capacity      float64 `json:"capacity"`
	Rate          float64 `json:"rate"`
	FixedStopCost float64 `json:"fixedStopCost,omitempty"`
}

// SolverConfigIn carries the recognized solver options. Zero values fall
// back to server defaults.
type SolverConfigIn struct {
	ConstructionStrategy string  `json:"constructionStrategy,omitempty"`
	Metaheuristic        string  `json:"metaheuristic,omitempty"`
	TimeLimitSeconds     float64 `json:"timeLimitSeconds,omitempty"`
	MaxIterations        int     `json:"maxIterations,omitempty"`
	NoImproveLimit       int     `json:"noImproveLimit,omitempty"`
	Seed                 int64   `json:"seed,omitempty"`
	InitialTemp          float64 `json:"initTemp,omitempty"`
	Cooling              float64 `json:"cooling,omitempty"`
	DistanceUnit         string  `json:"distanceUnit,omitempty"`
	Starts               int     `json:"starts,omitempty"`
}

// SolveRequest is the body of POST /v1/solve. PlanID lets a client pick
// the plan id up front so it can subscribe to progress events before the
// solve starts; when empty the server generates one.
type SolveRequest struct {
	TenantID string          `json:"tenantId,omitempty"`
	PlanID   string          `json:"planId,omitempty"`
	PlanDate string          `json:"planDate,omitempty"`
	Hub      HubIn           `json:"hub"`
	Nodes    []NodeIn        `json:"nodes"`
	Vehicles []VehicleIn     `json:"vehicles"`
	Config   *SolverConfigIn `json:"config,omitempty"`
}

// RouteOut is one vehicle's planned tour; the hub bracket is implicit.
type RouteOut struct {
	VehicleID string   `json:"vehicleId"`
	Stops     []string `json:"stops"`
	Cost      float64  `json:"cost"`
}

// Plan is a persisted solve outcome. Outcome is success or
// partial_infeasible; empty routes are never stored.
type Plan struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	PlanDate   string     `json:"planDate,omitempty"`
	Outcome    string     `json:"outcome"`
	TotalCost  float64    `json:"totalCost"`
	Routes     []RouteOut `json:"routes"`
	Unassigned []string   `json:"unassigned"`
	Feasible   bool       `json:"feasible"`
	CreatedAt  string     `json:"createdAt,omitempty"`
}

// SolveMetricsOut reports engine counters for a plan.
type SolveMetricsOut struct {
	Strategy      string  `json:"strategy"`
	Metaheuristic string  `json:"metaheuristic"`
	Iterations    int     `json:"iterations"`
	Improvements  int     `json:"improvements"`
	AcceptedWorse int     `json:"acceptedWorse"`
	InitialCost   float64 `json:"initialCost"`
	BestCost      float64 `json:"bestCost"`
	ElapsedMs     int64   `json:"elapsedMs"`
	StopReason    string  `json:"stopReason"`
}

// SolveResponse is the body returned by POST /v1/solve.
type SolveResponse struct {
	Plan    Plan            `json:"plan"`
	Metrics SolveMetricsOut `json:"metrics"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

// Subscription is a stored webhook registration.
type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
