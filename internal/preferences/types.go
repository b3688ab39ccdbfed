package preferences

// Setting keys in the settings table.
const (
	KeyFormat               = "download_format"
	KeyQuality              = "download_quality"
	KeySubs                 = "download_subs"
	KeyNotifications        = "notifications_enabled"
	KeySounds               = "notification_sounds"
	KeyMaxDownloads         = "max_downloads"
	KeyAutostart            = "autostart"
	KeyDownloadInterception = "download_interception"
	KeyFileTypeFilters      = "file_type_filters"
)

// Preferences are the user-tunable download settings. They survive restarts
// and apply to every download that does not override them per request.
type Preferences struct {
	Format               string   `json:"format"`
	Quality              string   `json:"quality"`
	Subs                 bool     `json:"subs"`
	Notifications        bool     `json:"notifications"`
	Sounds               bool     `json:"sounds"`
	MaxDownloads         int      `json:"maxDownloads"`
	Autostart            bool     `json:"autostart"`
	DownloadInterception bool     `json:"downloadInterception"`
	FileTypeFilters      []string `json:"fileTypeFilters"`
}

// DefaultPreferences returns the out-of-the-box settings.
func DefaultPreferences() Preferences {
	return Preferences{
		Format:               "Best Video + Audio",
		Quality:              "",
		Subs:                 true,
		Notifications:        true,
		Sounds:               false,
		MaxDownloads:         3,
		Autostart:            true,
		DownloadInterception: false,
		FileTypeFilters:      []string{},
	}
}

// Preset is a named download format choice offered by UIs.
type Preset struct {
	Name        string `yaml:"name" json:"name"`
	Format      string `yaml:"format" json:"format"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	AudioOnly   bool   `yaml:"audioOnly,omitempty" json:"audioOnly,omitempty"`
}
