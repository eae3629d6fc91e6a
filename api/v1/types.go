package v1

import "time"

type Error struct {
	Error string `json:"error"`
}

type Platforms struct {
	Sources      []string `json:"sources"`
	Destinations []string `json:"destinations"`
}

type SelectPlatformsRequest struct {
	Source      string `json:"source" binding:"required"`
	Destination string `json:"destination" binding:"required"`
}

type CredentialsRequest struct {
	Host     string `json:"host" binding:"required"`
	User     string `json:"user" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ConnectDestinationRequest struct {
	CredentialsRequest
	// StoragePool is only used by kvm destinations.
	StoragePool *string `json:"storagePool,omitempty"`
}

type SelectVMsRequest struct {
	Selection string `json:"selection"`
}

type SelectVMsResponse struct {
	Selected []int `json:"selected"`
}

type VM struct {
	Ordinal    int    `json:"ordinal"`
	Id         string `json:"id"`
	Name       string `json:"name"`
	PowerState string `json:"powerState"`
}

type VMResult struct {
	Ordinal    int        `json:"ordinal"`
	Name       string     `json:"name"`
	Outcome    string     `json:"outcome"`
	Reason     *string    `json:"reason,omitempty"`
	TargetId   *string    `json:"targetId,omitempty"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

type MigrationResult struct {
	Id             string     `json:"id"`
	Source         string     `json:"source"`
	Destination    string     `json:"destination"`
	TotalRequested int        `json:"totalRequested"`
	SucceededCount int        `json:"succeededCount"`
	FailedCount    int        `json:"failedCount"`
	Succeeded      []int      `json:"succeeded"`
	Failed         []int      `json:"failed"`
	Aborted        bool       `json:"aborted"`
	Items          []VMResult `json:"items"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     time.Time  `json:"finishedAt"`
}

type SessionStatus struct {
	Id          string           `json:"id"`
	Phase       string           `json:"phase"`
	Source      *string          `json:"source,omitempty"`
	Destination *string          `json:"destination,omitempty"`
	Inventory   []VM             `json:"inventory"`
	SelectedVms []int            `json:"selectedVms"`
	Result      *MigrationResult `json:"result,omitempty"`
	Error       *string          `json:"error,omitempty"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type SessionList struct {
	Sessions []SessionStatus `json:"sessions"`
}

type RunListResponse struct {
	Page      int               `json:"page"`
	PageCount int               `json:"pageCount"`
	Total     int               `json:"total"`
	Runs      []MigrationResult `json:"runs"`
}

type ListRunsParams struct {
	Destination []string `form:"destination"`
	Failed      *bool    `form:"failed"`
	Page        *int     `form:"page"`
	PageSize    *int     `form:"pageSize"`
}

// Configuration is the persisted document with every credential left out.
type Configuration struct {
	Source      *Account     `json:"source,omitempty"`
	Destination *Destination `json:"destination,omitempty"`
	SelectedVms []int        `json:"selectedVms"`
	Operational Operational  `json:"operational"`
}

type Account struct {
	Host string `json:"host"`
	User string `json:"user"`
}

type Destination struct {
	Platform    string  `json:"platform"`
	Account     Account `json:"account"`
	StoragePool *string `json:"storagePool,omitempty"`
}

type Operational struct {
	StorageTarget  string `json:"storageTarget" binding:"required"`
	ExportRoot     string `json:"exportRoot" binding:"required"`
	ExportToolPath string `json:"exportToolPath" binding:"required"`
}
