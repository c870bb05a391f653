package domain

import "time"

// StageCounts 台账中各阶段的消息数量。
type StageCounts struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	Processing        int `json:"processing"`
	Success           int `json:"success"`
	Error             int `json:"error"`
	Retry             int `json:"retry"`
	Skipped           int `json:"skipped"`
	FailedPermanently int `json:"failedPermanently"`
}

// Add 按阶段累加一条消息。
func (c *StageCounts) Add(stage Stage) {
	c.Total++
	switch stage {
	case StagePending:
		c.Pending++
	case StageProcessing:
		c.Processing++
	case StageSuccess:
		c.Success++
	case StageError:
		c.Error++
	case StageRetry:
		c.Retry++
	case StageSkipped:
		c.Skipped++
	case StageFailedPermanently:
		c.FailedPermanently++
	}
}

// DashboardStats 单个 Manager 的运营看板数据。
type DashboardStats struct {
	ManagerEmail         string      `json:"managerEmail"`
	ConnectedAt          time.Time   `json:"connectedAt"`
	TotalCampaigns       int         `json:"totalCampaigns"`
	CompletedCampaigns   int         `json:"completedCampaigns"`
	RecentCampaigns      int         `json:"recentCampaigns"`
	EmailsSent           int         `json:"emailsSent"`
	EmailsFailed         int         `json:"emailsFailed"`
	TotalClients         int         `json:"totalClients"`
	ActiveClients        int         `json:"activeClients"`
	ClientsWithResponses int         `json:"clientsWithResponses"`
	TotalResponses       int         `json:"totalResponses"`
	RecentResponses      int         `json:"recentResponses"`
	ResponseRate         float64     `json:"responseRate"`
	SendSuccessRate      float64     `json:"sendSuccessRate"`
	MessageStages        StageCounts `json:"messageProcessing"`
}

// ClientPerformance 单个客户的表现摘要。
type ClientPerformance struct {
	Email         string       `json:"email"`
	Name          string       `json:"name"`
	Status        ClientStatus `json:"status"`
	ResponseCount int          `json:"responseCount"`
	LastEmailSent *time.Time   `json:"lastEmailSent,omitempty"`
	AddedAt       time.Time    `json:"addedAt"`
}
