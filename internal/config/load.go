package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/resolver"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// AppName is the application name.
const AppName = "usedotnet"

// Setting keys. Each key is also a flag name, and is read from the
// environment as INPUT_<KEY in upper case without dashes>.
const (
	KeyPackageType     = "package-type"
	KeyVersion         = "version"
	KeyArchitecture    = "architecture"
	KeyProxy           = "proxy"
	KeyProxyURL        = "proxy-url"
	KeyProxyUsername   = "proxy-username"
	KeyProxyPassword   = "proxy-password"
	KeyAuthToken       = "auth-token"
	KeyFeedType        = "feed-type"
	KeyToolsDir        = "tools-dir"
	KeyTempDir         = "temp-dir"
	KeyResolverScript  = "resolver-script"
	KeyResolverTimeout = "resolver-timeout"
	KeyDownloadTimeout = "download-timeout"
	KeyKeyring         = "keyring"
	KeyLogLevel        = "log-level"
)

// Build agent variables consulted for directories.
const (
	EnvAgentToolsDirectory = "AGENT_TOOLSDIRECTORY"
	EnvAgentTempDirectory  = "AGENT_TEMPDIRECTORY"
	EnvRunnerToolCache     = "RUNNER_TOOL_CACHE"
	EnvRunnerTemp          = "RUNNER_TEMP"
)

// Defaults
const (
	DefaultPackageType     = "runtime"
	DefaultResolverTimeout = resolver.DefaultTimeout
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultLogLevel        = "info"
)

// Config is the validated configuration of one invocation.
type Config struct {
	PackageType  string
	Version      string
	Architecture string

	Proxy         bool
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	AuthToken     string
	FeedType      string

	ToolsDir string
	TempDir  string

	ResolverScript  string
	ResolverTimeout time.Duration
	DownloadTimeout time.Duration
	Keyring         string

	LogLevel log.Level
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyPackageType, DefaultPackageType, "package to install: sdk or runtime")
	fs.String(KeyVersion, "", "exact version to install, e.g. 8.0.100")
	fs.String(KeyArchitecture, "", "tool architecture: x64, arm64, x86 or arm (default: host)")
	fs.Bool(KeyProxy, false, "download through an HTTP proxy")
	fs.String(KeyProxyURL, "", "proxy url")
	fs.String(KeyProxyUsername, "", "proxy username")
	fs.String(KeyProxyPassword, "", "proxy password")
	fs.String(KeyAuthToken, "", "package feed token")
	fs.String(KeyFeedType, "internal", "package feed type: internal or external")
	fs.String(KeyToolsDir, "", "tool cache directory (default: $AGENT_TOOLSDIRECTORY)")
	fs.String(KeyTempDir, "", "working directory for downloads (default: $AGENT_TEMPDIRECTORY)")
	fs.String(KeyResolverScript, "", "program or .lua script printing the download urls")
	fs.Duration(KeyResolverTimeout, DefaultResolverTimeout, "maximum run time of the resolver script")
	fs.Duration(KeyDownloadTimeout, DefaultDownloadTimeout, "maximum duration of one download request")
	fs.String(KeyKeyring, "", "OpenPGP keyring; when set archives must carry a valid <url>.sig signature")
	fs.String(KeyLogLevel, DefaultLogLevel, "log level: debug, info, warn or error")
}

// EnvName returns the task-input environment variable of a setting key.
func EnvName(key string) string {
	return "INPUT_" + strings.ToUpper(strings.ReplaceAll(key, "-", ""))
}

// NewViper creates a viper instance bound to fs and to the environment.
// Explicit flags win over environment variables, which win over defaults.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetDefault(KeyPackageType, DefaultPackageType)
	v.SetDefault(KeyResolverTimeout, DefaultResolverTimeout)
	v.SetDefault(KeyDownloadTimeout, DefaultDownloadTimeout)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)

	envs := map[string][]string{
		KeyToolsDir: {EnvName(KeyToolsDir), EnvAgentToolsDirectory, EnvRunnerToolCache},
		KeyTempDir:  {EnvName(KeyTempDir), EnvAgentTempDirectory, EnvRunnerTemp},
	}
	for _, key := range []string{
		KeyPackageType, KeyVersion, KeyArchitecture,
		KeyProxy, KeyProxyURL, KeyProxyUsername, KeyProxyPassword,
		KeyAuthToken, KeyFeedType, KeyResolverScript,
		KeyResolverTimeout, KeyDownloadTimeout, KeyKeyring, KeyLogLevel,
	} {
		envs[key] = []string{EnvName(key)}
	}

	for key, names := range envs {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	return v, nil
}

// Load reads and validates the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		PackageType:     strings.ToLower(strings.TrimSpace(v.GetString(KeyPackageType))),
		Version:         strings.TrimSpace(v.GetString(KeyVersion)),
		Architecture:    strings.ToLower(strings.TrimSpace(v.GetString(KeyArchitecture))),
		Proxy:           v.GetBool(KeyProxy),
		ProxyURL:        v.GetString(KeyProxyURL),
		ProxyUsername:   v.GetString(KeyProxyUsername),
		ProxyPassword:   v.GetString(KeyProxyPassword),
		AuthToken:       v.GetString(KeyAuthToken),
		FeedType:        v.GetString(KeyFeedType),
		ToolsDir:        v.GetString(KeyToolsDir),
		TempDir:         v.GetString(KeyTempDir),
		ResolverScript:  v.GetString(KeyResolverScript),
		ResolverTimeout: v.GetDuration(KeyResolverTimeout),
		DownloadTimeout: v.GetDuration(KeyDownloadTimeout),
		Keyring:         v.GetString(KeyKeyring),
	}

	if _, err := tool.ParsePackageKind(cfg.PackageType); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyPackageType, err)
	}
	if cfg.PackageType == "" {
		cfg.PackageType = DefaultPackageType
	}

	level, err := log.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}
	cfg.LogLevel = level

	if cfg.ResolverTimeout <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", KeyResolverTimeout)
	}
	if cfg.DownloadTimeout <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", KeyDownloadTimeout)
	}

	if cfg.Proxy && strings.TrimSpace(cfg.ProxyURL) == "" {
		return nil, fmt.Errorf("%s is required when %s is enabled", KeyProxyURL, KeyProxy)
	}

	if cfg.ToolsDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("%s is not set and no user cache directory is available: %w", KeyToolsDir, err)
		}
		cfg.ToolsDir = filepath.Join(cacheDir, AppName, "tools")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return cfg, nil
}

// TransportInputs returns the proxy and authentication inputs.
func (c *Config) TransportInputs() transport.Inputs {
	return transport.Inputs{
		ProxyEnabled:  c.Proxy,
		ProxyURL:      c.ProxyURL,
		ProxyUsername: c.ProxyUsername,
		ProxyPassword: c.ProxyPassword,
		AuthToken:     c.AuthToken,
		FeedType:      c.FeedType,
	}
}
