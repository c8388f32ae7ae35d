package httpapi

// Config defines HTTP API and UI settings.
type Config struct {
	Addr            string
	SessionCookie   string
	SessionTTLHours int
	BaseURL         string
	BasePath        string
	// MaxUploadBytes caps multipart uploads. Zero selects the default.
	MaxUploadBytes int64
}
