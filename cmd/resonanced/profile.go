package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"resonance/internal/config"
	"resonance/internal/logging"
)

var (
	exportPrivate bool
	exportOutput  string
	importMerge   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath()
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			var verrs config.ValidationErrors
			if !errors.As(err, &verrs) {
				return err
			}
			for _, v := range verrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", v.Field, v.Message)
			}
			return fmt.Errorf("%s: %d problem(s)", path, len(verrs))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.ConfigPath()
		}
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored profile as JSON",
	Long: `Writes the stored profile to stdout or --output. Patterns and
preferences are included only when the profile's privacy settings share
them, unless --private is given.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a profile document into the store",
	Long: `Validates the document against the profile schema and applies it to
the configured profile. With --merge the document is overlaid on the
stored profile; otherwise it replaces it. The stored identity is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportPrivate, "private", false, "include private sections")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "merge into the stored profile")
}

// openProfile loads the configured profile for an offline command.
func openProfile(cmd *cobra.Command) (*profileSession, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	audit, err := newAuditLogger(cfg)
	if err != nil {
		return nil, err
	}
	blobs, closer, err := openBlobStore(cfg)
	if err != nil {
		audit.Close()
		return nil, err
	}
	ps := &profileSession{closers: closers{audit, closer}}
	ps.store = newProfileStore(cfg, blobs, audit, logging.Discard())
	if err := ps.store.Load(cmd.Context()); err != nil {
		ps.Close()
		return nil, err
	}
	return ps, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ps, err := openProfile(cmd)
	if err != nil {
		return err
	}
	defer ps.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.OpenFile(exportOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ps.store.ExportProfile(exportPrivate))
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ps, err := openProfile(cmd)
	if err != nil {
		return err
	}
	defer ps.Close()

	if err := ps.store.ImportJSON(raw, importMerge); err != nil {
		return err
	}
	if err := ps.store.Save(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s into profile %s\n", args[0], ps.store.ID())
	return nil
}
