package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskboard/internal/collection"
	"taskboard/internal/store"
)

// settings is the resolved configuration: flag > env > .env > config.json > default.
type settings struct {
	Store       store.Store
	Backend     string
	APIURL      string
	DBPath      string
	HTTPTimeout time.Duration
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolveSettings(app *App) (settings, error) {
	// .env only fills variables the environment does not already set.
	if err := store.LoadDotEnv(); err != nil {
		return settings{}, fmt.Errorf(".env: %w", err)
	}

	dir := strings.TrimSpace(app.ConfigDir)
	if dir == "" {
		d, err := store.DefaultDir()
		if err != nil {
			return settings{}, err
		}
		dir = d
	}
	st := store.Store{Dir: dir}

	cfg, err := st.LoadConfig()
	if err != nil {
		return settings{}, fmt.Errorf("config: %w", err)
	}

	kind, err := store.NormalizeBackend(firstNonEmpty(app.Backend, os.Getenv("TASKBOARD_BACKEND"), cfg.Backend))
	if err != nil {
		return settings{}, err
	}

	timeout := collection.DefaultTimeout
	if raw := firstNonEmpty(os.Getenv("TASKBOARD_HTTP_TIMEOUT"), cfg.HTTPTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return settings{}, fmt.Errorf("invalid http timeout %q", raw)
		}
		timeout = d
	}

	return settings{
		Store:       st,
		Backend:     kind,
		APIURL:      strings.TrimRight(firstNonEmpty(app.APIURL, os.Getenv("TASKBOARD_API_URL"), cfg.APIURL, store.DefaultAPIURL), "/"),
		DBPath:      firstNonEmpty(app.DBPath, os.Getenv("TASKBOARD_DB"), cfg.DBPath, st.DBPath()),
		HTTPTimeout: timeout,
	}, nil
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change persisted preferences (config.json)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show config.json and the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.settings.Store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			s := app.settings
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"file": cfg,
					"resolved": map[string]any{
						"configDir":   s.Store.Dir,
						"backend":     s.Backend,
						"apiUrl":      s.APIURL,
						"dbPath":      s.DBPath,
						"httpTimeout": s.HTTPTimeout.String(),
					},
				},
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <apiUrl|backend|dbPath|httpTimeout> <value>",
		Short: "Persist a preference (empty value clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.settings.Store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			key, val := args[0], strings.TrimSpace(args[1])
			switch key {
			case "apiUrl":
				cfg.APIURL = val
			case "backend":
				if val != "" {
					if val, err = store.NormalizeBackend(val); err != nil {
						return writeErr(cmd, err)
					}
				}
				cfg.Backend = val
			case "dbPath":
				cfg.DBPath = val
			case "httpTimeout":
				if val != "" {
					if d, err := time.ParseDuration(val); err != nil || d <= 0 {
						return writeErr(cmd, fmt.Errorf("invalid http timeout %q", val))
					}
				}
				cfg.HTTPTimeout = val
			default:
				return writeErr(cmd, fmt.Errorf("unknown config key %q", key))
			}
			if err := app.settings.Store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": cfg})
		},
	})

	return cmd
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"version": Version}})
		},
	}
}
