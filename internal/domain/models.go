// Package domain defines the persistence models for users, calls, checklist
// templates and call reviews. These types are mapped with GORM and form the
// core data layer of the call-quality-review service.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Role is the access level of a User.
type Role string

const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleOCCManager    Role = "OCC_MANAGER"
	RoleSupervisor    Role = "SUPERVISOR"
)

// Roles lists every supported role in descending privilege order.
var Roles = []Role{RoleAdministrator, RoleOCCManager, RoleSupervisor}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleOCCManager, RoleSupervisor:
		return true
	}
	return false
}

// ReviewStatus is the lifecycle state of a CallReview.
//
// A review is created PENDING and moves to SUCCESS or FAILED once the
// analysis service answers. SENT is kept for producers that set it directly.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "PENDING"
	ReviewSent    ReviewStatus = "SENT"
	ReviewSuccess ReviewStatus = "SUCCESS"
	ReviewFailed  ReviewStatus = "FAILED"
)

// Label returns the Russian display label of the status.
func (s ReviewStatus) Label() string {
	switch s {
	case ReviewPending:
		return "Ожидает"
	case ReviewSent:
		return "Отправлено"
	case ReviewSuccess:
		return "Успешно"
	case ReviewFailed:
		return "Ошибка"
	}
	return string(s)
}

// Open reports whether a review may still receive analysis results when it
// is looked up by call id.
func (s ReviewStatus) Open() bool {
	return s == ReviewPending || s == ReviewSent || s == ReviewSuccess
}

// EvaluationType defines how a checklist item is scored.
type EvaluationType string

const (
	EvalScale1To10 EvaluationType = "SCALE_1_10"
	EvalYesNo      EvaluationType = "YES_NO"
)

// Valid reports whether t is a supported evaluation type.
func (t EvaluationType) Valid() bool {
	return t == EvalScale1To10 || t == EvalYesNo
}

// User is an operator of the service. The password hash is never serialized.
type User struct {
	ID           string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"     gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Name         string    `json:"name"      gorm:"type:varchar(100);not null"`
	PasswordHash string    `json:"-"         gorm:"type:varchar(255);not null"`
	Role         Role      `json:"role"      gorm:"type:varchar(32);not null;index"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// CallRecord represents one phone call. The ID is supplied by the caller
// (telephony or CRM integration) and re-deliveries are upserted.
//
// CreatedAt is the time the call happened, not the insertion time; GORM only
// fills it when the caller leaves it zero.
type CallRecord struct {
	ID           string         `json:"id"           gorm:"type:varchar(191);primaryKey"`
	DealID       string         `json:"dealId"       gorm:"type:varchar(191);not null;index"`
	CreatedAt    time.Time      `json:"createdAt"    gorm:"index"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	EmployeeName string         `json:"employeeName" gorm:"type:varchar(255);not null;index"`
	ManagerName  string         `json:"managerName"  gorm:"type:varchar(255);not null"`
	InitiatedBy  *string        `json:"initiatedBy"  gorm:"type:varchar(255)"`
	CallText     *string        `json:"callText"     gorm:"type:text"`
	Payload      datatypes.JSON `json:"payload"`

	// Reviews are owned by the call and removed with it.
	Reviews []CallReview `json:"reviews,omitempty" gorm:"foreignKey:CallID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CallRecord.
func (CallRecord) TableName() string { return "calls" }

// ChecklistTemplate is a named evaluation form made of ordered items.
// At most one template is the default; the service layer keeps it that way.
type ChecklistTemplate struct {
	ID          string    `json:"id"          gorm:"type:varchar(191);primaryKey"`
	Title       string    `json:"title"       gorm:"type:varchar(200);not null"`
	Description *string   `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"isActive"    gorm:"not null;index"`
	IsDefault   bool      `json:"isDefault"   gorm:"not null;index"`
	CreatedByID string    `json:"createdById" gorm:"type:char(36);not null;index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// ReviewCount is filled by list queries.
	ReviewCount int64 `json:"reviewCount" gorm:"-"`

	CreatedBy *User           `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Items     []ChecklistItem `json:"items"               gorm:"foreignKey:TemplateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChecklistTemplate.
func (ChecklistTemplate) TableName() string { return "checklist_templates" }

// ChecklistItem is one evaluable statement of a template. OrderIndex is dense
// and scoped to the template.
type ChecklistItem struct {
	ID             string         `json:"id"             gorm:"type:char(36);primaryKey"`
	TemplateID     string         `json:"templateId"     gorm:"type:varchar(191);not null;index:idx_template_items,priority:1"`
	Title          string         `json:"title"          gorm:"type:varchar(200);not null"`
	Description    *string        `json:"description"    gorm:"type:varchar(500)"`
	OrderIndex     int            `json:"orderIndex"     gorm:"not null;index:idx_template_items,priority:2"`
	EvaluationType EvaluationType `json:"evaluationType" gorm:"type:varchar(16);not null"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TableName returns the database table name for ChecklistItem.
func (ChecklistItem) TableName() string { return "checklist_items" }

// CallReview is one evaluation run of a call against a template.
//
// RequestedByID is nil for automatic dispatches. N8nResponse keeps the raw
// answer of the analysis service and AnalysisResults the structured outcome
// delivered later through the result callbacks.
type CallReview struct {
	ID              string         `json:"id"              gorm:"type:char(36);primaryKey"`
	CallID          string         `json:"callId"          gorm:"type:varchar(191);not null;index:idx_call_reviews,priority:1"`
	TemplateID      string         `json:"templateId"      gorm:"type:varchar(191);not null;index"`
	RequestedByID   *string        `json:"requestedById"   gorm:"type:char(36);index"`
	Status          ReviewStatus   `json:"status"          gorm:"type:varchar(16);not null;index"`
	CommentText     *string        `json:"commentText"     gorm:"type:text"`
	N8nResponse     datatypes.JSON `json:"n8nResponse"`
	AnalysisResults datatypes.JSON `json:"analysisResults"`
	CompletedAt     *time.Time     `json:"completedAt"`
	CreatedAt       time.Time      `json:"createdAt"       gorm:"index:idx_call_reviews,priority:2"`
	UpdatedAt       time.Time      `json:"updatedAt"`

	Call        *CallRecord        `json:"call,omitempty"        gorm:"foreignKey:CallID;references:ID"`
	Template    *ChecklistTemplate `json:"template,omitempty"    gorm:"foreignKey:TemplateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	RequestedBy *User              `json:"requestedBy,omitempty" gorm:"foreignKey:RequestedByID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for CallReview.
func (CallReview) TableName() string { return "call_reviews" }

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Name   string
	Role   Role
}
