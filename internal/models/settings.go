package models

// Settings are the workspace-wide preferences edited on the settings page.
type Settings struct {
	OrganizationName    string       `json:"organizationName" yaml:"organizationName"`
	AdminEmail          string       `json:"adminEmail" yaml:"adminEmail"`
	Timezone            string       `json:"timezone" yaml:"timezone"`
	DefaultOutputFormat OutputFormat `json:"defaultOutputFormat" yaml:"defaultOutputFormat"`
	MaxFileSizeMB       int          `json:"maxFileSize" yaml:"maxFileSize"`
	EnablePreview       bool         `json:"enablePreview" yaml:"enablePreview"`
	AutoDownload        bool         `json:"autoDownload" yaml:"autoDownload"`
	EmailNotifications  bool         `json:"emailNotifications" yaml:"emailNotifications"`
	ConversionComplete  bool         `json:"conversionComplete" yaml:"conversionComplete"`
	ErrorAlerts         bool         `json:"errorAlerts" yaml:"errorAlerts"`
	RequireAuth         bool         `json:"requireAuth" yaml:"requireAuth"`
	SessionTimeout      int          `json:"sessionTimeout" yaml:"sessionTimeout"` // minutes
	EnableAuditLog      bool         `json:"enableAuditLog" yaml:"enableAuditLog"`
}

// MaxFileSizeBytes converts the configured limit to bytes.
func (s Settings) MaxFileSizeBytes() int64 {
	return int64(s.MaxFileSizeMB) * 1024 * 1024
}
