package models

// WorkspaceStats are the counters shown above the convert page.
type WorkspaceStats struct {
	FilesReady int `json:"filesReady"`
	TotalJobs  int `json:"totalJobs"`
	Completed  int `json:"completed"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
}

// DashboardStats summarize conversion history.
type DashboardStats struct {
	TotalJobs     int            `json:"totalJobs"`
	Completed     int            `json:"completed"`
	Failed        int            `json:"failed"`
	Processing    int            `json:"processing"`
	TotalRecords  int64          `json:"totalRecords"`
	ByFormat      map[string]int `json:"byFormat"`
	Organizations int            `json:"organizations"`
}
