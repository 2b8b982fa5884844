package global

var (
	Version        = "0.0.1"
	BuildTime      = "none"
	Verbose        = false
	NoColor        = false
	ConfigFilename = "bcpub.yaml"
)

// Environment variables read on top of the config file. Flags win over both.
const (
	ConfigEnvVarName   = "BCPUB_CONFIG"
	MirrorEnvVarName   = "BCPUB_MIRROR"
	JobsEnvVarName     = "BCPUB_JOBS"
	ArchEnvVarName     = "BCPUB_ARCH"
	LogLevelEnvVarName = "BCPUB_LOG_LEVEL"
)
