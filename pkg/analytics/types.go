package analytics

import "time"

// Entity names a transactional record set that can be counted.
type Entity string

const (
	EntityUsers         Entity = "users"
	EntityInternships   Entity = "internships"
	EntityApplications  Entity = "applications"
	EntityCertificates  Entity = "certificates"
	EntityTasks         Entity = "tasks"
	EntitySubmissions   Entity = "submissions"
	EntityCreditHistory Entity = "credit_history"
)

// User roles.
const (
	RoleIntern     = "INTERN"
	RoleMentor     = "MENTOR"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// Role groups used by the user breakdown.
var (
	InternRoles = []string{RoleIntern}
	MentorRoles = []string{RoleMentor}
	AdminRoles  = []string{RoleAdmin, RoleSuperAdmin}
)

// Record states read by the collectors and the snapshot builder.
const (
	InternshipActive    = "ACTIVE"
	InternshipCompleted = "COMPLETED"
	InternshipInactive  = "INACTIVE"

	ApplicationPending = "PENDING"

	TaskCompleted = "COMPLETED"
	TaskPending   = "PENDING"
	TaskOverdue   = "OVERDUE"

	SubmissionApproved = "APPROVED"
)

// Credit ledger entry types that add to a balance. Every other type subtracts.
const (
	CreditEarned = "EARNED"
	CreditBonus  = "BONUS"
)

// Filter narrows a Count. Zero fields are ignored. The time range is half-open,
// [From, To), over the entity's defining timestamp.
type Filter struct {
	From   time.Time
	To     time.Time
	Status string
	Roles  []string
}

// TaskCounts is a user's task breakdown by status.
type TaskCounts struct {
	Total     int64
	Completed int64
	Pending   int64
	Overdue   int64
}

// Submission is a user's task submission joined with its task's due date.
type Submission struct {
	ID          string
	TaskID      string
	Status      string
	SubmittedAt time.Time
	DueDate     *time.Time
}

// CreditEntry is one row of the credit ledger.
type CreditEntry struct {
	UserID    string
	Amount    int64
	Type      string
	CreatedAt time.Time
}

// OverviewStats holds platform totals and month-over-month growth percentages.
type OverviewStats struct {
	TotalUsers        int64   `json:"totalUsers"`
	TotalInternships  int64   `json:"totalInternships"`
	TotalApplications int64   `json:"totalApplications"`
	TotalCertificates int64   `json:"totalCertificates"`
	UserGrowth        float64 `json:"userGrowth"`
	InternshipGrowth  float64 `json:"internshipGrowth"`
	ApplicationGrowth float64 `json:"applicationGrowth"`
	CertificateGrowth float64 `json:"certificateGrowth"`
}

// UserStats breaks users down by role group and activity window.
type UserStats struct {
	Interns       int64 `json:"interns"`
	Mentors       int64 `json:"mentors"`
	Admins        int64 `json:"admins"`
	DailyActive   int64 `json:"dailyActive"`
	WeeklyActive  int64 `json:"weeklyActive"`
	MonthlyActive int64 `json:"monthlyActive"`
}

// InternshipStats counts internships by state. PendingApplications counts
// applications, not internships.
type InternshipStats struct {
	Active              int64 `json:"active"`
	Completed           int64 `json:"completed"`
	PendingApplications int64 `json:"pendingApplications"`
	Inactive            int64 `json:"inactive"`
}

// MonthlyDataPoint is one calendar-month bucket of the time series.
type MonthlyDataPoint struct {
	Month        string `json:"month"`
	Users        int64  `json:"users"`
	Internships  int64  `json:"internships"`
	Applications int64  `json:"applications"`
	Certificates int64  `json:"certificates"`
}

// CompletionRate is the share of finished internships that completed.
type CompletionRate struct {
	Rate        float64 `json:"rate"`
	Completed   int64   `json:"completed"`
	Total       int64   `json:"total"`
	Description string  `json:"description"`
}

// StudentAnalyticsSnapshot is the materialized per-user performance row.
type StudentAnalyticsSnapshot struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	TotalTasks        int64     `json:"totalTasks"`
	CompletedTasks    int64     `json:"completedTasks"`
	PendingTasks      int64     `json:"pendingTasks"`
	OverdueTasks      int64     `json:"overdueTasks"`
	AverageScore      float64   `json:"averageScore"`
	TotalSubmissions  int64     `json:"totalSubmissions"`
	OnTimeSubmissions int64     `json:"onTimeSubmissions"`
	LateSubmissions   int64     `json:"lateSubmissions"`
	TotalCredits      int64     `json:"totalCredits"`
	LastActive        time.Time `json:"lastActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	ComputedAt        time.Time `json:"computedAt"`
}
