package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
	"github.com/Seednode/gitgame/internal/github"
	"github.com/Seednode/gitgame/internal/session"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	githubToken string
	githubAPI   string
	githubRaw   string
	githubRPS   float64
	cacheSize   int
	cacheTTL    time.Duration
	redisAddr   string

	extensions   []string
	maxFileSize  int64
	reposPerFill int

	chunkSize  int
	peekSize   int
	peeks      int
	maxChoices int
	guessTime  time.Duration
	peekPeriod time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.githubRPS < 0 {
		return fmt.Errorf("invalid --github-rps (must not be negative): %v", c.githubRPS)
	}
	if c.cacheSize < 1 {
		return fmt.Errorf("invalid --cache-size (must be positive): %d", c.cacheSize)
	}
	if len(c.extensions) == 0 {
		return errors.New("at least one --extensions value is required")
	}
	if c.maxFileSize < 0 {
		return fmt.Errorf("invalid --max-file-size (must not be negative): %d", c.maxFileSize)
	}

	for name, value := range map[string]int{
		"--repos-per-fill": c.reposPerFill,
		"--chunk-size":     c.chunkSize,
		"--peek-size":      c.peekSize,
		"--max-choices":    c.maxChoices,
	} {
		if value < 1 {
			return fmt.Errorf("invalid %s (must be positive): %d", name, value)
		}
	}

	if c.peeks < 0 {
		return fmt.Errorf("invalid --peeks (must not be negative): %d", c.peeks)
	}
	if c.guessTime <= 0 || c.peekPeriod <= 0 {
		return errors.New("--guess-time and --peek-period must be positive")
	}
	if c.peekPeriod > c.guessTime {
		return fmt.Errorf("--peek-period (%s) must not exceed --guess-time (%s)", c.peekPeriod, c.guessTime)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// loadEnvFiles reads .env into the process environment without overriding
// variables that are already set.
func loadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GITGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "gitgame",
		Short:         "A multiplayer game where players guess which GitHub user wrote a chunk of code.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GITGAME_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: GITGAME_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: GITGAME_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: GITGAME_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: GITGAME_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: GITGAME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: GITGAME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: GITGAME_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: GITGAME_VERSION)")

	fs.StringVar(&cfg.githubToken, "github-token", "", "GitHub API token, raises the provider rate limit (env: GITGAME_GITHUB_TOKEN)")
	fs.StringVar(&cfg.githubAPI, "github-api", github.DefaultAPIURL, "GitHub REST API base URL (env: GITGAME_GITHUB_API)")
	fs.StringVar(&cfg.githubRaw, "github-raw", github.DefaultRawURL, "GitHub raw content base URL (env: GITGAME_GITHUB_RAW)")
	fs.Float64Var(&cfg.githubRPS, "github-rps", 10, "maximum GitHub requests per second, 0 for unlimited (env: GITGAME_GITHUB_RPS)")
	fs.IntVar(&cfg.cacheSize, "cache-size", 2048, "number of provider responses kept in memory (env: GITGAME_CACHE_SIZE)")
	fs.DurationVar(&cfg.cacheTTL, "cache-ttl", time.Hour, "lifetime of provider responses cached in redis (env: GITGAME_CACHE_TTL)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for a shared provider cache, in-memory if unset (env: GITGAME_REDIS_ADDR)")

	fs.StringSliceVar(&cfg.extensions, "extensions", file.DefaultExtensions, "file extensions eligible for rounds (env: GITGAME_EXTENSIONS)")
	fs.Int64Var(&cfg.maxFileSize, "max-file-size", file.DefaultMaxFileSize, "largest eligible file in bytes, 0 for unlimited (env: GITGAME_MAX_FILE_SIZE)")
	fs.IntVar(&cfg.reposPerFill, "repos-per-fill", 1, "non-empty repositories loaded per author refill (env: GITGAME_REPOS_PER_FILL)")

	fs.IntVar(&cfg.chunkSize, "chunk-size", chunk.DefaultStartingSize, "lines shown at the start of a round (env: GITGAME_CHUNK_SIZE)")
	fs.IntVar(&cfg.peekSize, "peek-size", chunk.DefaultPeekSize, "lines revealed per peek (env: GITGAME_PEEK_SIZE)")
	fs.IntVar(&cfg.peeks, "peeks", chunk.DefaultPeeks, "peeks allowed per round (env: GITGAME_PEEKS)")
	fs.IntVar(&cfg.maxChoices, "max-choices", session.DefaultMaxChoices, "authors offered per round (env: GITGAME_MAX_CHOICES)")
	fs.DurationVar(&cfg.guessTime, "guess-time", session.DefaultGuessTime, "time allowed for guessing each round (env: GITGAME_GUESS_TIME)")
	fs.DurationVar(&cfg.peekPeriod, "peek-period", session.DefaultPeekPeriod, "time between automatic peeks (env: GITGAME_PEEK_PERIOD)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("gitgame v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
